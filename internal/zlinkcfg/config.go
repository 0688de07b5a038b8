// Package zlinkcfg holds the functional-option configuration surface shared
// by Server, Connection and Proxy: buffer profile/class, pipelining, and
// the IDL introspection surface level.
package zlinkcfg

import "log/slog"

// IDLSurface selects how much interface-description machinery a service
// links in. The zero value is the fullest surface, so a zero-value Config
// (or RegistryOptions) behaves as if introspection were fully enabled
// rather than silently disabled.
type IDLSurface int

const (
	// IDLDescriptorsAndParser is the full idl.Read/String round trip.
	IDLDescriptorsAndParser IDLSurface = iota
	// IDLDescriptorsOnly is treated by Registry exactly like
	// IDLDescriptorsAndParser: GetInterfaceDescription still serves
	// descriptors, and the idl text parser is still linked and used.
	IDLDescriptorsOnly
	// IDLOff keeps no descriptors; GetInterfaceDescription always fails
	// MethodNotImplemented.
	IDLOff
)

// Profile and Class mirror the Buffer knobs of the same name, re-exported
// here so callers configure everything through one options surface.
type Profile int

const (
	ProfileHeap Profile = iota
	ProfileFixed
)

type Class int

const (
	Class2KiB  Class = 2048
	Class4KiB  Class = 4096
	Class16KiB Class = 16384
	Class1MiB  Class = 1048576
)

// Config is an immutable value built by New; it carries no mutation
// methods, only the options applied at construction.
type Config struct {
	Profile     Profile
	BufferClass Class
	Pipelining  bool
	IDLSurface  IDLSurface
	Logger      *slog.Logger
}

// Option configures a Config under construction.
type Option func(*Config)

// WithProfile selects the heap-growable or fixed-capacity buffer discipline.
func WithProfile(p Profile) Option {
	return func(c *Config) { c.Profile = p }
}

// WithBufferClass selects the initial (and, for ProfileFixed, maximum)
// buffer capacity.
func WithBufferClass(class Class) Option {
	return func(c *Config) { c.BufferClass = class }
}

// WithPipelining enables Proxy.Chain batching of enqueued calls into a
// single write. Disabled by default.
func WithPipelining(enabled bool) Option {
	return func(c *Config) { c.Pipelining = enabled }
}

// WithIDLSurface selects how much introspection machinery is linked in.
func WithIDLSurface(level IDLSurface) Option {
	return func(c *Config) { c.IDLSurface = level }
}

// WithLogger overrides the default stderr text logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// New builds a Config from opts, defaulting to a heap-growable 2KiB buffer,
// pipelining disabled, and descriptors-only introspection.
func New(opts ...Option) Config {
	c := Config{
		Profile:     ProfileHeap,
		BufferClass: Class2KiB,
		Pipelining:  false,
		IDLSurface:  IDLDescriptorsOnly,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
