package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"sprout/internal/flows"
	"sprout/internal/wizard/accumulator"
	"sprout/internal/wizard/attachment"
	"sprout/internal/wizard/metrics"
	"sprout/internal/wizard/sequencer"
	"sprout/internal/wizard/store"
	"sprout/internal/wizard/submission"
	"sprout/internal/wizard/submission/mocks"
	"sprout/internal/wizard/validation"
	audit "sprout/pkg/platform/audit"
	"sprout/pkg/platform/audit/publisher"
	auditmemory "sprout/pkg/platform/audit/store/memory"
)

// harness wires a Service against in-memory stores and a mocked registration
// service.
type harness struct {
	svc         *Service
	sessions    *store.InMemoryStore
	attachments *attachment.Manager
	registrar   *mocks.MockRegistrar
	status      *mocks.MockStatusProvider
	audit       *auditmemory.InMemoryStore
	metrics     *metrics.Metrics
}

type harnessConfig struct {
	previewer   attachment.Previewer
	coordinator []submission.Option
	auditStore  audit.Store
	logOutput   io.Writer
}

type harnessOption func(*harnessConfig)

func withPreviewer(p attachment.Previewer) harnessOption {
	return func(c *harnessConfig) { c.previewer = p }
}

func withCoordinator(opts ...submission.Option) harnessOption {
	return func(c *harnessConfig) { c.coordinator = append(c.coordinator, opts...) }
}

// withAuditStore replaces the in-memory audit log the publisher writes to.
func withAuditStore(st audit.Store) harnessOption {
	return func(c *harnessConfig) { c.auditStore = st }
}

func withLogOutput(w io.Writer) harnessOption {
	return func(c *harnessConfig) { c.logOutput = w }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{previewer: attachment.HandlePreviewer{}, logOutput: io.Discard}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctrl := gomock.NewController(t)
	h := &harness{
		sessions:  store.NewInMemory(),
		registrar: mocks.NewMockRegistrar(ctrl),
		status:    mocks.NewMockStatusProvider(ctrl),
		audit:     auditmemory.NewInMemoryStore(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	logger := slog.New(slog.NewTextHandler(cfg.logOutput, nil))

	engine := validation.NewEngine()
	h.attachments = attachment.New(attachment.WithPreviewer(cfg.previewer), attachment.WithLogger(logger))
	acc, err := accumulator.New(engine)
	require.NoError(t, err)
	seq, err := sequencer.New(engine, h.attachments)
	require.NoError(t, err)
	coord, err := submission.New(h.registrar, attachment.DigestIngestor{}, h.attachments, seq,
		append([]submission.Option{submission.WithLogger(logger)}, cfg.coordinator...)...)
	require.NoError(t, err)

	var auditStore audit.Store = h.audit
	if cfg.auditStore != nil {
		auditStore = cfg.auditStore
	}
	pub := publisher.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	h.svc, err = New(flows.MustLoad(), h.sessions, Components{
		Accumulator: acc,
		Sequencer:   seq,
		Attachments: h.attachments,
		Coordinator: coord,
	},
		WithLogger(logger),
		WithAuditPublisher(pub),
		WithMetrics(h.metrics),
		WithStatusProvider(h.status),
	)
	require.NoError(t, err)
	t.Cleanup(h.svc.Close)
	return h
}

func counter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
