package providers

import "net/http"

// Base provides common fields shared by REST-based provider implementations.
type Base struct {
	name    string
	apiKey  string
	baseURL string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider base URL.
func (b *Base) BaseURL() string { return b.baseURL }

// Option customises a REST provider at construction time.
type Option func(*restOptions)

type restOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *restOptions) { o.httpClient = c }
}

func applyOptions(opts []Option) restOptions {
	o := restOptions{httpClient: &http.Client{}}
	for _, fn := range opts {
		fn(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	return o
}
