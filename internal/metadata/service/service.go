package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tokenmeta/internal/audit"
	"tokenmeta/internal/metadata/metrics"
	"tokenmeta/internal/metadata/models"
	"tokenmeta/internal/metadata/resolve"
	"tokenmeta/internal/metadata/schema"
	"tokenmeta/internal/metadata/sequence"
	"tokenmeta/internal/metadata/signature"
	dErrors "tokenmeta/pkg/domain-errors"
	"tokenmeta/pkg/platform/sentinel"
	pstrings "tokenmeta/pkg/platform/strings"
	"tokenmeta/pkg/requestcontext"
)

// Store persists metadata objects. Implementations live in the store package.
type Store interface {
	FindOne(ctx context.Context, subject string) (*models.Object, error)
	InsertOne(ctx context.Context, obj *models.Object) error
	UpdateOne(ctx context.Context, subject string, u models.Update) error
	Find(ctx context.Context, subjects []string) ([]*models.Object, error)
}

// FreshReader is implemented by stores that serve FindOne from a cache.
// Writes decide on sequence numbers and subject existence, so they read
// through it to see the backend's current state.
type FreshReader interface {
	FindOneFresh(ctx context.Context, subject string) (*models.Object, error)
}

type Verifier interface {
	IsAuthentic(subject, property string, entry models.Entry) (bool, error)
}

type Publisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Rejection reasons recorded in metrics.
const (
	reasonValidation       = "validation"
	reasonSubjectExists    = "subject_exists"
	reasonSubjectNotFound  = "subject_not_found"
	reasonPropertyNotFound = "property_not_found"
	reasonOlderEntry       = "older_entry"
	reasonInvalidSignature = "invalid_signature"
)

// Service orchestrates validation, sequencing, signature checks and
// persistence of metadata objects.
type Service struct {
	store     Store
	verifier  Verifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: signature.NewVerifier(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("tokenmeta/internal/metadata/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new object. Every generic property becomes a one-entry
// history and must carry a valid signature.
func (s *Service) Create(ctx context.Context, payload models.Value) (err error) {
	ctx, finish := s.begin(ctx, "create")
	defer func() { finish(err) }()

	if err := s.validate(schema.KindCreate, payload); err != nil {
		return err
	}
	subjectValue, _ := payload.Get(models.PropertySubject)
	subject, _ := subjectValue.AsString()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("metadata.subject", subject))

	_, err = s.findForWrite(ctx, subject)
	switch {
	case err == nil:
		return s.subjectExists(subject)
	case !errors.Is(err, sentinel.ErrNotFound):
		return s.storeError(ctx, err, "failed to look up subject")
	}

	scalars, entries, err := split(payload)
	if err != nil {
		return err
	}
	if err := s.verify(subject, entries); err != nil {
		return err
	}

	obj := models.NewObject(subject)
	for name, v := range scalars {
		obj.Scalars[name] = v
	}
	for _, ne := range entries {
		obj.Entries[ne.Property] = []models.Entry{ne.Entry}
	}

	if err := s.store.InsertOne(ctx, obj); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.subjectExists(subject)
		}
		return s.storeError(ctx, err, "failed to create metadata object")
	}

	s.metrics.IncrementCreated()
	s.metrics.AddEntriesAppended(len(entries))
	s.logger.InfoContext(ctx, "metadata object created",
		"subject", subject,
		"properties", len(scalars)+len(entries),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.EventMetadataCreated, subject, obj.PropertyNames())
	return nil
}

// Read returns the resolved object for subject.
func (s *Service) Read(ctx context.Context, subject string) (view resolve.View, err error) {
	ctx, finish := s.begin(ctx, "read")
	defer func() { finish(err) }()

	obj, err := s.load(ctx, subject)
	if err != nil {
		return resolve.View{}, err
	}
	return resolve.Resolve(obj), nil
}

// ListPropertyNames returns the names stored on subject, subject first.
func (s *Service) ListPropertyNames(ctx context.Context, subject string) (names []string, err error) {
	ctx, finish := s.begin(ctx, "list_properties")
	defer func() { finish(err) }()

	obj, err := s.load(ctx, subject)
	if err != nil {
		return nil, err
	}
	return obj.PropertyNames(), nil
}

// ReadProperty returns a view holding only the named property.
func (s *Service) ReadProperty(ctx context.Context, subject, name string) (view resolve.View, err error) {
	ctx, finish := s.begin(ctx, "read_property")
	defer func() { finish(err) }()

	obj, err := s.load(ctx, subject)
	if err != nil {
		return resolve.View{}, err
	}
	resolved := resolve.Resolve(obj)
	if _, ok := resolved.Get(name); !ok {
		return resolve.View{}, s.reject(reasonPropertyNotFound,
			dErrors.Newf(dErrors.CodePropertyNotFound, "property %s not found on subject %s", name, subject))
	}
	return resolved.Only(name), nil
}

// Update overwrites well-known scalars and appends new entries to generic
// properties. Properties new to the object start a history at any sequence
// number; existing histories only accept max+1.
func (s *Service) Update(ctx context.Context, subject string, payload models.Value) (err error) {
	ctx, finish := s.begin(ctx, "update")
	defer func() { finish(err) }()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("metadata.subject", subject))

	if err := s.validate(schema.KindUpdate, payload); err != nil {
		return err
	}
	existing, err := s.findForWrite(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.subjectNotFound(subject)
		}
		return s.storeError(ctx, err, "failed to load metadata object")
	}

	scalars, entries, err := split(payload)
	if err != nil {
		return err
	}
	if violations := sequence.Check(existing, entries); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return s.reject(reasonOlderEntry,
			dErrors.Newf(dErrors.CodeOlderEntry, "entries out of sequence: %s", strings.Join(msgs, "; ")).WithDetails(violations))
	}
	if err := s.verify(subject, entries); err != nil {
		return err
	}

	u := models.Update{Set: scalars}
	for _, ne := range entries {
		u.Appends = append(u.Appends, models.Append{
			Property:    ne.Property,
			Entry:       ne.Entry,
			ExpectedMax: models.MaxSequence(existing.Entries[ne.Property]),
		})
	}
	if u.IsEmpty() {
		return nil
	}

	if err := s.store.UpdateOne(ctx, subject, u); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			s.logger.WarnContext(ctx, "concurrent append lost",
				"subject", subject,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return s.reject(reasonOlderEntry,
				dErrors.Wrap(err, dErrors.CodeOlderEntry, "a newer entry was stored concurrently"))
		case errors.Is(err, sentinel.ErrNotFound):
			return s.subjectNotFound(subject)
		}
		return s.storeError(ctx, err, "failed to update metadata object")
	}

	s.metrics.IncrementUpdated()
	s.metrics.AddEntriesAppended(len(u.Appends))
	s.logger.InfoContext(ctx, "metadata object updated",
		"subject", subject,
		"scalars", len(u.Set),
		"appends", len(u.Appends),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.EventMetadataUpdated, subject, u.Properties())
	return nil
}

// Query resolves every known subject in the payload, ordered by subject.
// Unknown subjects and absent properties are skipped.
func (s *Service) Query(ctx context.Context, payload models.Value) (views []resolve.View, err error) {
	ctx, finish := s.begin(ctx, "query")
	defer func() { finish(err) }()

	if err := s.validate(schema.KindQuery, payload); err != nil {
		return nil, err
	}
	subjectsValue, _ := payload.Get("subjects")
	subjects := pstrings.SortedUnique(stringItems(subjectsValue))

	var properties []string
	if propsValue, ok := payload.Get("properties"); ok {
		properties = pstrings.Dedupe(stringItems(propsValue))
	}

	objects, err := s.store.Find(ctx, subjects)
	if err != nil {
		return nil, s.storeError(ctx, err, "failed to query metadata objects")
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Subject < objects[j].Subject })

	views = make([]resolve.View, 0, len(objects))
	for _, obj := range objects {
		view := resolve.Resolve(obj)
		if properties != nil {
			view = view.Project(properties)
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "metadata."+operation)
	return ctx, func(err error) {
		s.metrics.ObserveOperation(operation, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}
}

func (s *Service) load(ctx context.Context, subject string) (*models.Object, error) {
	obj, err := s.store.FindOne(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.subjectNotFound(subject)
		}
		return nil, s.storeError(ctx, err, "failed to load metadata object")
	}
	return obj, nil
}

func (s *Service) findForWrite(ctx context.Context, subject string) (*models.Object, error) {
	if fr, ok := s.store.(FreshReader); ok {
		return fr.FindOneFresh(ctx, subject)
	}
	return s.store.FindOne(ctx, subject)
}

func (s *Service) validate(kind schema.Kind, payload models.Value) error {
	violations := schema.Validate(kind, payload)
	if len(violations) == 0 {
		return nil
	}
	return s.reject(reasonValidation,
		dErrors.Newf(dErrors.CodeValidation, "%s payload failed validation", kind).WithDetails(violations))
}

func (s *Service) verify(subject string, entries []models.NamedEntry) error {
	for _, ne := range entries {
		ok, err := s.verifier.IsAuthentic(subject, ne.Property, ne.Entry)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnmapped, "signature verification failed")
		}
		s.metrics.ObserveSignatureCheck(ok)
		if !ok {
			return s.reject(reasonInvalidSignature,
				dErrors.Newf(dErrors.CodeInvalidSignature, "no valid signature for property %s", ne.Property))
		}
	}
	return nil
}

func (s *Service) subjectExists(subject string) error {
	return s.reject(reasonSubjectExists,
		dErrors.Newf(dErrors.CodeSubjectExists, "subject %s already exists", subject))
}

func (s *Service) subjectNotFound(subject string) error {
	return s.reject(reasonSubjectNotFound,
		dErrors.Newf(dErrors.CodeSubjectNotFound, "subject %s not found", subject))
}

func (s *Service) reject(reason string, err *dErrors.Error) error {
	s.metrics.IncrementRejection(reason)
	return err
}

// storeError wraps a persistence failure. The cause is logged here and never
// reaches the client.
func (s *Service) storeError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store call exceeded the request deadline")
	}
	s.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeStore, msg)
}

func (s *Service) emit(ctx context.Context, typ audit.EventType, subject string, properties []string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, audit.NewEvent(ctx, typ, subject, properties)); err != nil {
		s.logger.WarnContext(ctx, "failed to emit change event",
			"event_type", typ,
			"subject", subject,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// split separates a schema-valid payload into well-known scalars and generic
// entries, keeping payload order for the entries. subject is skipped.
func split(payload models.Value) (map[string]models.Value, []models.NamedEntry, error) {
	scalars := map[string]models.Value{}
	var entries []models.NamedEntry
	for _, m := range payload.Members() {
		switch {
		case m.Key == models.PropertySubject:
		case models.IsWellKnown(m.Key):
			scalars[m.Key] = m.Value
		default:
			entry, err := models.EntryFromValue(m.Value)
			if err != nil {
				return nil, nil, dErrors.Wrap(err, dErrors.CodeUnmapped, "failed to decode entry "+m.Key)
			}
			entries = append(entries, models.NamedEntry{Property: m.Key, Entry: entry})
		}
	}
	return scalars, entries, nil
}

func stringItems(v models.Value) []string {
	items := v.Items()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}
