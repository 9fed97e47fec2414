package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/events"
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

// SystemDataRepository is the system data access command handlers need.
type SystemDataRepository interface {
	DataProviderGet(ctx context.Context, id uuid.UUID) (*systemdata.DataProvider, error)
	TranslationInfoGet(ctx context.Context, id uuid.UUID) (*systemdata.TranslationInfo, error)
	FoodGroupGet(ctx context.Context, id uuid.UUID) (*systemdata.FoodGroup, error)
	FoodGroupGetByForeignKey(ctx context.Context, dp *systemdata.DataProvider, key string) (*systemdata.FoodGroup, error)
	FoodItemGetByForeignKey(ctx context.Context, dp *systemdata.DataProvider, key string) (*systemdata.FoodItem, error)
	Insert(ctx context.Context, proxy dataprovider.DataProxy) error
	Update(ctx context.Context, proxy dataprovider.DataProxy) error
	Delete(ctx context.Context, proxy dataprovider.DataProxy) error
}

// HouseholdDataRepository is the household data access command handlers need.
type HouseholdDataRepository interface {
	HouseholdGet(ctx context.Context, id uuid.UUID) (*householddata.Household, error)
	HouseholdMemberGet(ctx context.Context, id uuid.UUID) (*householddata.HouseholdMember, error)
	HouseholdMemberGetByMailAddress(ctx context.Context, mailAddress string) (*householddata.HouseholdMember, error)
	Insert(ctx context.Context, proxy dataprovider.DataProxy) error
	Update(ctx context.Context, proxy dataprovider.DataProxy) error
	Delete(ctx context.Context, proxy dataprovider.DataProxy) error
}

var (
	_ SystemDataRepository    = (*systemdata.Repository)(nil)
	_ HouseholdDataRepository = (*householddata.Repository)(nil)
)

// EventPublisher publishes command events.
type EventPublisher interface {
	PublishCommandExecuted(ctx context.Context, params events.CommandExecutedParams) error
}

// SystemDataModifier implements one system data command.
type SystemDataModifier[C any] interface {
	CommandName() string
	AddValidationRules(cmd C, spec *Specification, v Validations, now time.Time)
	ModifyData(ctx context.Context, cmd C, repo SystemDataRepository, now time.Time) (Identifiable, error)
}

// HouseholdDataModifier implements one household data command executed on
// behalf of the calling household member.
type HouseholdDataModifier[C any] interface {
	CommandName() string
	ShouldBeActivated() bool
	ShouldHaveAcceptedPrivacyPolicy() bool
	RequiredMembership() householddata.Membership
	AddValidationRules(cmd C, member *householddata.HouseholdMember, spec *Specification, v Validations, now time.Time)
	ModifyData(ctx context.Context, cmd C, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error)
}

// Dependencies are the collaborators every handler is built with.
type Dependencies struct {
	ReceiptMapper  ReceiptMapper
	Specifications SpecificationFactory
	Validations    Validations
	FaultBuilder   FaultBuilder
}

// DefaultDependencies returns the default collaborators.
func DefaultDependencies() Dependencies {
	return Dependencies{
		ReceiptMapper:  NewReceiptMapper(nil),
		Specifications: NewSpecification,
		Validations:    NewValidations(),
		FaultBuilder:   NewFaultBuilder(),
	}
}

func (d Dependencies) validate() error {
	switch {
	case isNil(d.ReceiptMapper):
		return fmt.Errorf("receipt mapper is required: %w", fwerrors.ErrValidation)
	case d.Specifications == nil:
		return fmt.Errorf("specification factory is required: %w", fwerrors.ErrValidation)
	case isNil(d.Validations):
		return fmt.Errorf("validations are required: %w", fwerrors.ErrValidation)
	case isNil(d.FaultBuilder):
		return fmt.Errorf("fault builder is required: %w", fwerrors.ErrValidation)
	}
	return nil
}

// HandlerOption configures a handler.
type HandlerOption func(*handlerCore)

// WithPublisher publishes a command executed event after every success.
func WithPublisher(p EventPublisher) HandlerOption {
	return func(h *handlerCore) { h.publisher = p }
}

// WithLogger sets the handler logger.
func WithLogger(l logging.Logger) HandlerOption {
	return func(h *handlerCore) { h.logger = l }
}

// WithMetrics counts executions.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *handlerCore) { h.metrics = m }
}

// WithClock sets the clock commands are executed with.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *handlerCore) { h.clock = now }
}

// handlerCore holds what both base handlers share.
type handlerCore struct {
	Dependencies
	name      string
	publisher EventPublisher
	logger    logging.Logger
	metrics   *Metrics
	clock     func() time.Time
}

func newHandlerCore(name string, deps Dependencies, opts []HandlerOption) (*handlerCore, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	h := &handlerCore{
		Dependencies: deps,
		name:         name,
		logger:       logging.NewNopLogger(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logging.F("command", name))
	return h, nil
}

// TracerName is the name of the tracer command executions are traced with.
const TracerName = "commands"

func (h *handlerCore) startSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "commands."+h.name,
		trace.WithAttributes(attribute.String("command", h.name)))
}

// finish maps the receipt, publishes the event and records the outcome.
func (h *handlerCore) finish(ctx context.Context, obj Identifiable, mailAddress string, err error) (*Receipt, error) {
	span := trace.SpanFromContext(ctx)
	log := h.logger.WithContext(ctx)

	var receipt *Receipt
	if err == nil {
		receipt, err = h.ReceiptMapper.Map(obj)
	}
	if err != nil {
		fault := h.FaultBuilder.Build(h.name, err)
		h.metrics.observe(h.name, fault)
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
		log.Warn("Command failed", logging.Err(fault))
		return nil, fault
	}

	if h.publisher != nil {
		perr := h.publisher.PublishCommandExecuted(ctx, events.CommandExecutedParams{
			Command:     h.name,
			Identifier:  receipt.Identifier,
			EventDate:   receipt.EventDate,
			MailAddress: mailAddress,
		})
		if perr != nil {
			log.Warn("Failed to publish command executed event", logging.Err(perr))
		}
	}

	h.metrics.observe(h.name, nil)
	log.Info("Command executed", logging.F("identifier", receipt.Identifier))
	return receipt, nil
}

// ==================== System data ====================

// SystemDataHandler executes system data commands.
type SystemDataHandler[C any] struct {
	*handlerCore
	repo     SystemDataRepository
	modifier SystemDataModifier[C]
}

// NewSystemDataHandler creates a system data handler. Every collaborator is
// required.
func NewSystemDataHandler[C any](repo SystemDataRepository, deps Dependencies, modifier SystemDataModifier[C], opts ...HandlerOption) (*SystemDataHandler[C], error) {
	if isNil(repo) {
		return nil, fmt.Errorf("system data repository is required: %w", fwerrors.ErrValidation)
	}
	if isNil(modifier) {
		return nil, fmt.Errorf("modifier is required: %w", fwerrors.ErrValidation)
	}
	core, err := newHandlerCore(modifier.CommandName(), deps, opts)
	if err != nil {
		return nil, err
	}
	return &SystemDataHandler[C]{handlerCore: core, repo: repo, modifier: modifier}, nil
}

// Execute validates cmd, applies it and returns a receipt.
func (h *SystemDataHandler[C]) Execute(ctx context.Context, cmd C) (*Receipt, error) {
	ctx, span := h.startSpan(ctx)
	defer span.End()
	now := h.clock()

	spec := h.Specifications()
	h.modifier.AddValidationRules(cmd, spec, h.Validations, now)
	if err := spec.Evaluate(); err != nil {
		return h.finish(ctx, nil, "", err)
	}

	obj, err := h.modifier.ModifyData(ctx, cmd, h.repo, now)
	return h.finish(ctx, obj, "", err)
}

// ==================== Household data ====================

// HouseholdDataHandler executes household data commands on behalf of the
// household member named by the mail address claim.
type HouseholdDataHandler[C any] struct {
	*handlerCore
	repo     HouseholdDataRepository
	modifier HouseholdDataModifier[C]
}

// NewHouseholdDataHandler creates a household data handler. Every
// collaborator is required.
func NewHouseholdDataHandler[C any](repo HouseholdDataRepository, deps Dependencies, modifier HouseholdDataModifier[C], opts ...HandlerOption) (*HouseholdDataHandler[C], error) {
	if isNil(repo) {
		return nil, fmt.Errorf("household data repository is required: %w", fwerrors.ErrValidation)
	}
	if isNil(modifier) {
		return nil, fmt.Errorf("modifier is required: %w", fwerrors.ErrValidation)
	}
	core, err := newHandlerCore(modifier.CommandName(), deps, opts)
	if err != nil {
		return nil, err
	}
	return &HouseholdDataHandler[C]{handlerCore: core, repo: repo, modifier: modifier}, nil
}

// Execute resolves the calling member, checks the member requirements and
// the command rules, applies cmd and returns a receipt.
func (h *HouseholdDataHandler[C]) Execute(ctx context.Context, cmd C) (*Receipt, error) {
	ctx, span := h.startSpan(ctx)
	defer span.End()
	now := h.clock()

	mailAddress, ok := MailAddressFrom(ctx)
	if !ok {
		return h.finish(ctx, nil, "", fwerrors.NewCodedError(fwerrors.CodeUnauthorized,
			"no mail address claim", fwerrors.ErrUnauthorized))
	}

	member, err := h.repo.HouseholdMemberGetByMailAddress(ctx, mailAddress)
	if err != nil {
		if fwerrors.IsNotFound(err) {
			err = fwerrors.NewCodedError(fwerrors.CodeUnauthorized, "household member is unknown", err)
		}
		return h.finish(ctx, nil, mailAddress, err)
	}

	spec := h.Specifications()
	if h.modifier.ShouldBeActivated() {
		spec.IsSatisfiedBy(member.IsActivated, fwerrors.NewCodedError(fwerrors.CodeMemberNotActivated,
			"household member is not activated", fwerrors.ErrInvalidState))
	}
	if h.modifier.ShouldHaveAcceptedPrivacyPolicy() {
		spec.IsSatisfiedBy(member.IsPrivacyPolicyAccepted, fwerrors.NewCodedError(fwerrors.CodePrivacyPolicyNotAccepted,
			"household member has not accepted the privacy policy", fwerrors.ErrInvalidState))
	}
	required := h.modifier.RequiredMembership()
	spec.IsSatisfiedBy(func() bool { return member.HasRequiredMembership(required, now) },
		fwerrors.NewCodedError(fwerrors.CodeMembershipRequired,
			fmt.Sprintf("%s membership is required", required), fwerrors.ErrForbidden))

	h.modifier.AddValidationRules(cmd, member, spec, h.Validations, now)
	if err := spec.Evaluate(); err != nil {
		return h.finish(ctx, nil, mailAddress, err)
	}

	obj, err := h.modifier.ModifyData(ctx, cmd, member, h.repo, now)
	return h.finish(ctx, obj, mailAddress, err)
}
