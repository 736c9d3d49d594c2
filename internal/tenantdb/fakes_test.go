package tenantdb

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/secrets"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSecrets is an in-memory secrets.Store that counts reads.
type fakeSecrets struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	reads  map[string]int
	getErr error
	// entered, when set, is signalled as a read starts.
	entered chan struct{}
	// block, when set, is received from before every read.
	block chan struct{}
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{blobs: make(map[string][]byte), reads: make(map[string]int)}
}

func (f *fakeSecrets) setConfig(tenantID string, cfg model.DatabaseConfig) {
	b, _ := json.Marshal(model.SecretFromConfig(cfg))
	f.setRaw(tenantID, string(b))
}

func (f *fakeSecrets) setRaw(tenantID, blob string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[secrets.TenantSecretName(tenantID, model.ServiceDatabase)] = []byte(blob)
}

func (f *fakeSecrets) readCount(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[secrets.TenantSecretName(tenantID, model.ServiceDatabase)]
}

func (f *fakeSecrets) GetSecret(_ context.Context, name string) ([]byte, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[name]++
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.blobs[name]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return b, nil
}

func (f *fakeSecrets) PutSecret(_ context.Context, name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[name] = value
	return nil
}

func (f *fakeSecrets) DeleteSecret(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, name)
	return nil
}

// recordedQuery is one statement seen by a fakeConnector.
type recordedQuery struct {
	SQL    string
	Params []interface{}
}

// fakeConnector answers every statement with the same rows and records
// what it was asked.
type fakeConnector struct {
	cfg  model.DatabaseConfig
	rows []map[string]interface{}
	err  error

	mu      sync.Mutex
	queries []recordedQuery
	closed  bool
}

func (c *fakeConnector) Query(_ context.Context, sql string, params []interface{}) (*model.QueryResult, error) {
	c.mu.Lock()
	c.queries = append(c.queries, recordedQuery{SQL: sql, Params: params})
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return model.NewQueryResult(c.rows), nil
}

func (c *fakeConnector) Ping(context.Context) error { return nil }

func (c *fakeConnector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConnector) Provider() model.Provider { return c.cfg.Provider() }

func (c *fakeConnector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnector) seen() []recordedQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedQuery(nil), c.queries...)
}

// fakeBackends hands out fakeConnectors keyed by client key so tests can
// inspect what each backend received.
type fakeBackends struct {
	mu    sync.Mutex
	rows  map[string][]map[string]interface{}
	errs  map[string]error
	built map[string][]*fakeConnector
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		rows:  make(map[string][]map[string]interface{}),
		errs:  make(map[string]error),
		built: make(map[string][]*fakeConnector),
	}
}

func (b *fakeBackends) factory(_ context.Context, cfg model.DatabaseConfig) (connector.Connector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := cfg.ClientKey()
	c := &fakeConnector{cfg: cfg, rows: b.rows[key], err: b.errs[key]}
	b.built[key] = append(b.built[key], c)
	return c, nil
}

func (b *fakeBackends) latest(cfg model.DatabaseConfig) *fakeConnector {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.built[cfg.ClientKey()]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// statements counts what every connector built for cfg received.
func (b *fakeBackends) statements(cfg model.DatabaseConfig) int {
	b.mu.Lock()
	list := append([]*fakeConnector(nil), b.built[cfg.ClientKey()]...)
	b.mu.Unlock()
	n := 0
	for _, c := range list {
		n += len(c.seen())
	}
	return n
}

func (b *fakeBackends) registry() *connector.Registry {
	r := connector.NewRegistry()
	r.RegisterProvider(model.ProviderServerlessSQL, b.factory)
	r.RegisterProvider(model.ProviderRemoteDataAPI, b.factory)
	return r
}
