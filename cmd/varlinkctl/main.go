// Command varlinkctl is a small CLI for introspecting a running varlink
// service: GetInfo and GetInterfaceDescription over a dialed connection.
// Grounded on emersion-go-varlink/cmd/certification's flag-driven
// client/server split, wired to this module's Proxy and transport/streamsock
// instead of a certification-suite backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"git.sr.ht/~varlinkrt/zlink-go"
	"git.sr.ht/~varlinkrt/zlink-go/transport/streamsock"
)

func main() {
	protocol := flag.String("protocol", "unix", "dial network (unix, tcp)")
	address := flag.String("address", "", "dial address (socket path or host:port)")
	timeout := flag.Duration("timeout", 5*time.Second, "call timeout")
	flag.Parse()

	if *address == "" || flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: varlinkctl -address ADDR [-protocol unix|tcp] <info|describe INTERFACE>")
		os.Exit(2)
	}

	conn, err := net.Dial(*protocol, *address)
	if err != nil {
		log.Fatalf("varlinkctl: dial: %v", err)
	}
	defer conn.Close()

	proxy := zlink.NewProxy(zlink.NewConnection(streamsock.New(conn), zlink.ProfileHeap, zlink.Class4KiB))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch flag.Arg(0) {
	case "info":
		runInfo(ctx, proxy)
	case "describe":
		if flag.NArg() < 2 {
			log.Fatal("varlinkctl: describe requires an interface name")
		}
		runDescribe(ctx, proxy, flag.Arg(1))
	default:
		log.Fatalf("varlinkctl: unknown command %q", flag.Arg(0))
	}
}

func runInfo(ctx context.Context, proxy *zlink.Proxy) {
	outcome, err := proxy.Do(ctx, "org.varlink.service.GetInfo", nil)
	if err != nil {
		log.Fatalf("varlinkctl: GetInfo: %v", err)
	}
	if outcome.IsError() {
		log.Fatalf("varlinkctl: GetInfo: %s", outcome.ErrorName())
	}

	var out struct {
		Vendor     string   `json:"vendor"`
		Product    string   `json:"product"`
		Version    string   `json:"version"`
		URL        string   `json:"url"`
		Interfaces []string `json:"interfaces"`
	}
	if err := outcome.DecodeParams(&out); err != nil {
		log.Fatalf("varlinkctl: decoding GetInfo reply: %v", err)
	}

	fmt.Printf("vendor:  %s\n", out.Vendor)
	fmt.Printf("product: %s\n", out.Product)
	fmt.Printf("version: %s\n", out.Version)
	fmt.Printf("url:     %s\n", out.URL)
	fmt.Println("interfaces:")
	for _, name := range out.Interfaces {
		fmt.Printf("  %s\n", name)
	}
}

func runDescribe(ctx context.Context, proxy *zlink.Proxy, iface string) {
	outcome, err := proxy.Do(ctx, "org.varlink.service.GetInterfaceDescription", map[string]string{"interface": iface})
	if err != nil {
		log.Fatalf("varlinkctl: GetInterfaceDescription: %v", err)
	}
	if outcome.IsError() {
		log.Fatalf("varlinkctl: GetInterfaceDescription: %s", outcome.ErrorName())
	}

	var out struct {
		Description string `json:"description"`
	}
	if err := outcome.DecodeParams(&out); err != nil {
		log.Fatalf("varlinkctl: decoding GetInterfaceDescription reply: %v", err)
	}
	fmt.Println(out.Description)
}
