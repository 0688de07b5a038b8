// Command varlinkgen reads a .varlink interface definition and emits a Go
// source file with the interface's named types, an In and an Out struct
// per method, a method-call sum type, an error sum type, and a typed Client
// wrapping *zlink.Proxy. It emits no reply sum type and no server-side
// Handler or Backend. Grounded on emersion-go-varlink's
// //go:generate-driven varlinkgen invocation (example/generate.go) and
// cmd/certification/client.go's generated-code calling convention, neither
// of which shipped the generator itself; built here with
// github.com/dave/jennifer, the teacher's own sole dependency.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~varlinkrt/zlink-go/idl"
)

func main() {
	input := flag.String("i", "", "path to a .varlink interface definition")
	outDir := flag.String("o", "", "output directory (defaults to the input file's directory)")
	pkgName := flag.String("package", "", "generated package name (defaults to the interface's last dotted component)")
	flag.Parse()

	if *input == "" {
		log.Fatal("varlinkgen: -i is required")
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("varlinkgen: %v", err)
	}
	defer f.Close()

	iface, err := idl.Read(f)
	if err != nil {
		log.Fatalf("varlinkgen: parsing %s: %v", *input, err)
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(*input)
	}
	pkg := *pkgName
	if pkg == "" {
		parts := strings.Split(iface.Name, ".")
		pkg = parts[len(parts)-1]
	}

	gen := generator{iface: iface, pkgName: pkg}
	file, err := gen.generate()
	if err != nil {
		log.Fatalf("varlinkgen: generating %s: %v", iface.Name, err)
	}

	outPath := filepath.Join(dir, pkg+"_varlink.go")
	if err := file.Save(outPath); err != nil {
		log.Fatalf("varlinkgen: writing %s: %v", outPath, err)
	}
	log.Printf("varlinkgen: wrote %s (%s)", outPath, iface.Name)
}
