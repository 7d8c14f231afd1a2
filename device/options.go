package device

import "log/slog"

type options struct {
	name      string
	capacity  int
	store     Store
	copier    Copier
	collector Collector
	publisher Publisher
	logger    *slog.Logger
}

// Option configures a Device.
type Option func(*options)

// WithName sets the name used in logs and events. Default "mychardev".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCapacity sets the buffer size when no Store is supplied.
func WithCapacity(capacity int) Option {
	return func(o *options) { o.capacity = capacity }
}

// WithStore supplies the backing memory. The device owns it from then on
// and closes it on teardown.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithCopier replaces the caller-memory transfer primitive.
func WithCopier(c Copier) Option {
	return func(o *options) { o.copier = c }
}

func WithCollector(c Collector) Option {
	return func(o *options) { o.collector = c }
}

func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
