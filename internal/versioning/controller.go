package versioning

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxRetries is how many times AfterSave retries an append that lost
// the race for a version number.
const DefaultMaxRetries = 3

// Default spacing between append retries. Each wait is jittered by up to half
// its length and doubles until it reaches the maximum.
const (
	DefaultRetryBackoff    = 5 * time.Millisecond
	DefaultMaxRetryBackoff = 200 * time.Millisecond
)

// appendStripes is the number of locks appends for different owners are
// spread over.
const appendStripes = 64

const tracerName = "github.com/jerome/simply-versioned/internal/versioning"

// FailureHandler is told about versioning failures that Save and Destroy do
// not return to their caller.
type FailureHandler func(ctx context.Context, owner Owner, err error)

// Controller captures a version on every save of a host, trims old versions
// and reverts hosts to earlier versions.
type Controller struct {
	store      Store
	codec      Codec
	retention  *RetentionPolicy
	hosts      HostStore
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	metrics    Recorder
	tracer     trace.Tracer
	onFailure  FailureHandler
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	// Appends for one owner are serialized within a Controller, so only
	// writers in other processes can take a number between NextNumber
	// and Append.
	appendLocks [appendStripes]sync.Mutex
}

// NewController creates a Controller. codec, retention, logger, clock and idgen
// fall back to YAML, DefaultKeep, no logging, the wall clock and UUIDs when nil.
// hosts may be nil if Save, RevertToVersion and Destroy are never used.
func NewController(store Store, codec Codec, retention *RetentionPolicy, hosts HostStore, logger Logger, clock Clock, idgen IDGenerator) *Controller {
	if codec == nil {
		codec = NewYAMLCodec(nil)
	}
	if retention == nil {
		retention = NewRetentionPolicy(DefaultKeep)
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &Controller{
		store:      store,
		codec:      codec,
		retention:  retention,
		hosts:      hosts,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		metrics:    NopRecorder{},
		tracer:     otel.Tracer(tracerName),
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultRetryBackoff,
		maxBackoff: DefaultMaxRetryBackoff,
	}
}

// SetMetrics replaces the no-op recorder.
func (c *Controller) SetMetrics(r Recorder) { c.metrics = r }

// SetTracerProvider replaces the global OpenTelemetry tracer provider.
func (c *Controller) SetTracerProvider(tp trace.TracerProvider) { c.tracer = tp.Tracer(tracerName) }

// SetFailureHandler registers h for failures swallowed by Save and Destroy.
func (c *Controller) SetFailureHandler(h FailureHandler) { c.onFailure = h }

// SetMaxRetries bounds append retries. Negative values are treated as 0.
func (c *Controller) SetMaxRetries(n int) {
	if n < 0 {
		n = 0
	}
	c.maxRetries = n
}

// SetRetryBackoff sets the wait before the first append retry and the cap the
// doubling wait grows to. A zero initial wait retries immediately.
func (c *Controller) SetRetryBackoff(initial, limit time.Duration) {
	if initial < 0 {
		initial = 0
	}
	if limit < initial {
		limit = initial
	}
	c.backoff = initial
	c.maxBackoff = limit
}

// Retention returns the policy used after each captured version.
func (c *Controller) Retention() *RetentionPolicy { return c.retention }

// BeforeSave captures the host's attribute set ahead of a save. The following
// AfterSave stores exactly this snapshot, so attributes changed by the save
// itself are not part of it. Calling BeforeSave is optional.
func (c *Controller) BeforeSave(ctx context.Context, host Host) error {
	state := host.VersioningState()
	if !state.VersioningEnabled() {
		return nil
	}
	snapshot, err := c.encode(host)
	if err != nil {
		return err
	}
	state.cache(snapshot)
	return nil
}

// AfterSave records a new version of host. It must be called after the host
// save has committed. It is a no-op while versioning is disabled for host.
//
// The returned error describes the failed capture only; the host save it
// follows has already happened and is never undone.
func (c *Controller) AfterSave(ctx context.Context, host Host) error {
	state := host.VersioningState()
	snapshot, cached := state.take()
	if !state.VersioningEnabled() {
		return nil
	}

	owner := host.VersionOwner()
	ctx, span := c.tracer.Start(ctx, "versioning.AfterSave", trace.WithAttributes(
		attribute.String("owner.type", owner.Type),
		attribute.Int64("owner.id", owner.ID),
	))
	defer span.End()

	if !cached {
		var err error
		if snapshot, err = c.encode(host); err != nil {
			return c.fail(span, owner, "after_save", err)
		}
	}

	start := time.Now()
	v, err := c.append(ctx, owner, snapshot)
	c.metrics.CaptureDuration(owner.Type, time.Since(start))
	if err != nil {
		return c.fail(span, owner, "after_save", err)
	}
	span.SetAttributes(attribute.Int64("version.number", v.Number))

	// Trimming is best-effort cleanup; the new version is already durable.
	if _, err := c.Trim(ctx, owner); err != nil {
		c.logger.Warn("trimming versions failed", "owner", owner.String(), "error", err)
		c.metrics.HookFailed(owner.Type, "trim")
	}
	return nil
}

// append allocates the next number and inserts the version, retrying with
// jittered backoff when a writer outside this Controller took the number first.
func (c *Controller) append(ctx context.Context, owner Owner, snapshot []byte) (*Version, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	mu := c.appendLock(owner)
	mu.Lock()
	defer mu.Unlock()

	attempts := c.maxRetries + 1
	backoff := c.backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		number, err := c.store.NextNumber(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("computing next version number: %w", err)
		}

		v, err := c.store.Append(ctx, &Version{
			ID:        c.idgen.New(),
			Owner:     owner,
			Number:    number,
			Snapshot:  snapshot,
			CreatedAt: c.clock.Now(),
		})
		if err == nil {
			c.metrics.VersionCreated(owner.Type, attempt)
			c.logger.Debug("version created", "owner", owner.String(), "number", v.Number)
			return v, nil
		}
		if !errors.Is(err, ErrConstraintViolation) {
			return nil, fmt.Errorf("appending version: %w", err)
		}

		c.metrics.AppendConflict(owner.Type)
		if attempt == attempts {
			break
		}

		wait := jitter(backoff)
		c.logger.Debug("version number taken, retrying", "owner", owner.String(), "number", number, "attempt", attempt, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("waiting to retry append: %w", err)
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConcurrencyConflict, owner, attempts)
}

func (c *Controller) appendLock(owner Owner) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(owner.Type))
	h.Write([]byte(strconv.FormatInt(owner.ID, 10)))
	return &c.appendLocks[h.Sum32()%appendStripes]
}

// jitter spreads d over [d/2, 3d/2).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) encode(host Host) ([]byte, error) {
	attrs, err := host.Attributes()
	if err != nil {
		return nil, fmt.Errorf("%w: reading attributes: %v", ErrSerializationFailure, err)
	}
	return c.codec.Encode(host.VersionOwner().Type, attrs)
}

func (c *Controller) fail(span trace.Span, owner Owner, hook string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.metrics.HookFailed(owner.Type, hook)
	c.logger.Error("versioning failed", "hook", hook, "owner", owner.String(), "error", err)
	return err
}

// Trim applies the retention policy to owner.
func (c *Controller) Trim(ctx context.Context, owner Owner) (int64, error) {
	n, err := c.retention.Trim(ctx, c.store, owner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.metrics.VersionsTrimmed(owner.Type, n)
		c.logger.Debug("versions trimmed", "owner", owner.String(), "count", n)
	}
	return n, nil
}

// Save runs the full save lifecycle of host: capture, persist through the
// HostStore, record the version. Only a failed host save is returned;
// versioning failures go to the logger, metrics and the failure handler.
func (c *Controller) Save(ctx context.Context, host Host) error {
	if c.hosts == nil {
		return errors.New("no host store configured")
	}

	if err := c.BeforeSave(ctx, host); err != nil {
		// AfterSave will try to capture again after the save.
		c.logger.Warn("capturing snapshot before save failed", "owner_type", host.VersionOwner().Type, "error", err)
	}

	if err := c.hosts.Save(ctx, host); err != nil {
		host.VersioningState().take()
		return fmt.Errorf("saving host: %w", err)
	}

	if err := c.AfterSave(ctx, host); err != nil {
		c.report(ctx, host.VersionOwner(), err)
	}
	return nil
}

// RevertToVersion applies the snapshot of version number onto host and saves
// it, which records a new version. History is never rewritten.
func (c *Controller) RevertToVersion(ctx context.Context, host Host, number int64) error {
	owner := host.VersionOwner()
	v, err := c.store.Get(ctx, owner, number)
	if err != nil {
		return fmt.Errorf("finding version %d of %s: %w", number, owner, err)
	}
	return c.RevertTo(ctx, host, v)
}

// RevertTo is RevertToVersion for an already loaded version. When the host
// cannot be saved, its previous attributes are applied back so the in-memory
// host matches what is persisted.
func (c *Controller) RevertTo(ctx context.Context, host Host, v *Version) error {
	owner := host.VersionOwner()
	if v.Owner != owner {
		return fmt.Errorf("%w: version %d belongs to %s, not %s", ErrVersionNotFound, v.Number, v.Owner, owner)
	}

	ctx, span := c.tracer.Start(ctx, "versioning.RevertTo", trace.WithAttributes(
		attribute.String("owner.type", owner.Type),
		attribute.Int64("owner.id", owner.ID),
		attribute.Int64("version.number", v.Number),
	))
	defer span.End()

	attrs, err := c.ToModel(v)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reverting %s to version %d: %w", owner, v.Number, err)
	}
	prev, err := host.Attributes()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reverting %s to version %d: %w: reading attributes: %v", owner, v.Number, ErrSerializationFailure, err)
	}
	if err := host.ApplyAttributes(attrs); err != nil {
		span.RecordError(err)
		c.restore(host, prev)
		return fmt.Errorf("reverting %s to version %d: %w: %v", owner, v.Number, ErrSerializationFailure, err)
	}

	if err := c.Save(ctx, host); err != nil {
		span.RecordError(err)
		c.restore(host, prev)
		return fmt.Errorf("reverting %s to version %d: %w", owner, v.Number, err)
	}
	c.logger.Info("host reverted", "owner", owner.String(), "number", v.Number)
	return nil
}

func (c *Controller) restore(host Host, attrs Attributes) {
	if err := host.ApplyAttributes(attrs); err != nil {
		c.logger.Warn("restoring attributes after failed revert", "owner", host.VersionOwner().String(), "error", err)
	}
}

// WithoutVersioning runs body with versioning disabled for host. The previous
// setting is restored however body exits, including by panic.
func (c *Controller) WithoutVersioning(ctx context.Context, host Host, body func(ctx context.Context) error) error {
	state := host.VersioningState()
	prev := state.setEnabled(false)
	defer state.setEnabled(prev)
	return body(ctx)
}

// IsUnversioned reports whether host has no versions, which is the case for
// hosts saved before versioning was enabled for their type.
func (c *Controller) IsUnversioned(ctx context.Context, host Host) (bool, error) {
	n, err := c.store.Count(ctx, host.VersionOwner())
	if err != nil {
		return false, fmt.Errorf("counting versions: %w", err)
	}
	return n == 0, nil
}

// IsVersioned reports whether host has at least one version.
func (c *Controller) IsVersioned(ctx context.Context, host Host) (bool, error) {
	unversioned, err := c.IsUnversioned(ctx, host)
	return !unversioned, err
}

// AfterDestroy deletes the whole history of host. Call it once the host
// delete has committed.
func (c *Controller) AfterDestroy(ctx context.Context, host Host) error {
	_, err := c.Purge(ctx, host.VersionOwner())
	return err
}

// Purge deletes every version of owner.
func (c *Controller) Purge(ctx context.Context, owner Owner) (int64, error) {
	n, err := c.store.DeleteAllForOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("deleting versions of %s: %w", owner, err)
	}
	c.logger.Debug("versions purged", "owner", owner.String(), "count", n)
	return n, nil
}

// Destroy deletes host through the HostStore, then its versions.
func (c *Controller) Destroy(ctx context.Context, host Host) error {
	if c.hosts == nil {
		return errors.New("no host store configured")
	}
	if err := c.hosts.Delete(ctx, host); err != nil {
		return fmt.Errorf("deleting host: %w", err)
	}
	if err := c.AfterDestroy(ctx, host); err != nil {
		c.metrics.HookFailed(host.VersionOwner().Type, "after_destroy")
		c.logger.Error("versioning failed", "hook", "after_destroy", "owner", host.VersionOwner().String(), "error", err)
		c.report(ctx, host.VersionOwner(), err)
	}
	return nil
}

func (c *Controller) report(ctx context.Context, owner Owner, err error) {
	if c.onFailure != nil {
		c.onFailure(ctx, owner, err)
	}
}
