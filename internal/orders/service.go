package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/internal/catalog"
	"github.com/angelmondragon/schoolorders-backend/internal/fulfillment"
	"github.com/angelmondragon/schoolorders-backend/internal/pricing"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
	"github.com/angelmondragon/schoolorders-backend/pkg/security"
)

// PublicPathPrefix is where share links resolve.
const PublicPathPrefix = "/orders/public/"

const (
	publicAccepted      = "accepted"
	publicAlreadyFilled = "already_filled"
	publicRejected      = "rejected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusEngine interface {
	AdvanceOrder(ctx context.Context, tx *gorm.DB, orderID int64, target enums.DeliveryStatus, dispatchID *int64, actor *uuid.UUID) (*fulfillment.Outcome, error)
	Record(outcome *fulfillment.Outcome)
}

// Service exposes order operations to controllers.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input OrderInput) (*OrderDTO, error)
	Get(ctx context.Context, actor auth.Actor, id int64) (*OrderDTO, error)
	List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error)
	Update(ctx context.Context, actor auth.Actor, id int64, input OrderInput) (*OrderDTO, error)
	Quote(ctx context.Context, actor auth.Actor, input OrderInput) (*QuoteDTO, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, id int64, input StatusInput) (*OrderDTO, error)
	MarkReceived(ctx context.Context, actor auth.Actor, id int64) (*OrderDTO, error)
	CreateShareLink(ctx context.Context, actor auth.Actor, id int64) (*ShareLinkDTO, error)
	GetPublic(ctx context.Context, token string) (*PublicOrderDTO, error)
	SubmitPublic(ctx context.Context, token string, input PublicOrderInput) (*PublicOrderDTO, error)
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Catalog  *catalog.Catalog
	Engine   statusEngine
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Config   config.OrdersConfig
	NewToken func() (string, error)
	Now      func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	catalog   *catalog.Catalog
	engine    statusEngine
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	cfg       config.OrdersConfig
	tolerance decimal.Decimal
	newToken  func() (string, error)
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog required")
	}
	if params.Engine == nil {
		return nil, errors.New("status engine required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.NewToken == nil {
		params.NewToken = security.NewShareToken
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Config.ShareTokenAttempts <= 0 {
		params.Config.ShareTokenAttempts = 3
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		catalog:   params.Catalog,
		engine:    params.Engine,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       params.Config,
		tolerance: params.Config.Tolerance(),
		newToken:  params.NewToken,
		now:       params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input OrderInput) (*OrderDTO, error) {
	order, err := s.draftNew(actor, input)
	if err != nil {
		return nil, err
	}
	if err := s.checkTotals(ctx, order, input.Totals); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID)
	s.logg.Info(s.logg.WithField(ctx, "net_amount", pricing.Format(order.NetAmount)), "order created")
	dto := toOrderDTO(order)
	return &dto, nil
}

func (s *service) Quote(ctx context.Context, actor auth.Actor, input OrderInput) (*QuoteDTO, error) {
	order, err := s.draftNew(actor, input)
	if err != nil {
		return nil, err
	}
	dto := toQuoteDTO(order)
	return &dto, nil
}

func (s *service) draftNew(actor auth.Actor, input OrderInput) (*models.Order, error) {
	mode := enums.DiscountModeFlat
	if input.DiscountMode != "" {
		mode = enums.DiscountMode(input.DiscountMode)
	}
	draft := NewDraft(s.catalog, actor.UserID, mode)
	s.applyInput(draft, input)
	return draft.Commit()
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id int64) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if !actor.IsAdmin() {
		owner := actor.UserID
		filters.UserID = &owner
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Validation("invalid filter", map[string]string{"status": "must be pending, dispatched or delivered"})
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Validation("invalid cursor", map[string]string{"cursor": err.Error()})
	}

	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, toOrderDTO(&rows[i]))
	}
	return out, nil
}

// Update replaces the provided blocks of a pending order. A provided item
// map replaces every line. Concurrent edits are last-write-wins.
func (s *service) Update(ctx context.Context, actor auth.Actor, id int64, input OrderInput) (*OrderDTO, error) {
	var saved *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, current) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if current.Status != enums.DeliveryStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be edited").
				WithDetails(map[string]string{"status": string(current.Status)})
		}
		if input.DiscountMode != "" && enums.DiscountMode(input.DiscountMode) != current.DiscountMode {
			return pkgerrors.Validation("invalid order", map[string]string{"discount_mode": "cannot change after creation"})
		}

		draft := DraftFrom(s.catalog, current)
		s.applyInput(draft, input)
		order, err := draft.Commit()
		if err != nil {
			return err
		}
		if err := s.checkTotals(ctx, order, input.Totals); err != nil {
			return err
		}
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save order")
		}
		saved = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, id), "order updated")
	dto := toOrderDTO(saved)
	return &dto, nil
}

func (s *service) applyInput(draft *Draft, input OrderInput) {
	if input.Office != nil {
		draft.Office(*input.Office)
	}
	if input.School != nil {
		draft.School(*input.School)
	}
	if input.Contacts != nil {
		draft.Contacts(*input.Contacts)
	}
	if input.Delivery != nil {
		draft.Delivery(*input.Delivery)
	}
	if input.DiscountValue != nil {
		draft.SetDiscountValue(*input.DiscountValue)
	}
	if input.Items != nil {
		parsed, err := parseItemMap(s.catalog, input.Items)
		draft.errs = multierr.Append(draft.errs, err)
		draft.ResetItems()
		parsed.applyTo(draft, true)
	}
}

// UpdateStatus moves an order forward. Admins may set any forward status;
// owners may only confirm delivery of an order that was dispatched.
func (s *service) UpdateStatus(ctx context.Context, actor auth.Actor, id int64, input StatusInput) (*OrderDTO, error) {
	target, err := enums.ParseDeliveryStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.Validation("invalid status", map[string]string{"status": "must be pending, dispatched or delivered"})
	}

	var outcome *fulfillment.Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), id)
		if err != nil {
			return err
		}
		if !canAccess(actor, order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if !actor.IsAdmin() {
			if err := checkOwnerAcknowledgement(order, target, input.DispatchID); err != nil {
				return err
			}
		}
		outcome, err = s.engine.AdvanceOrder(ctx, tx, id, target, input.DispatchID, actor.Ref())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Record(outcome)
	if outcome.Changed() {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, id), map[string]any{
			"status":        string(target),
			"transitions":   len(outcome.Transitions),
			"actor_role":    string(actor.Role),
			"support_moved": outcome.SupportRequestsMoved,
		})
		s.logg.Info(logCtx, "order status advanced")
	}

	order, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

// checkOwnerAcknowledgement limits non-admins to dispatched -> delivered on
// the order's existing dispatch.
func checkOwnerAcknowledgement(order *models.Order, target enums.DeliveryStatus, dispatchID *int64) error {
	if target != enums.DeliveryStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may set this status")
	}
	if dispatchID != nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may assign a dispatch")
	}
	if order.Status == enums.DeliveryStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been dispatched").
			WithDetails(map[string]string{"status": string(order.Status)})
	}
	return nil
}

// MarkReceived is the owner's delivery acknowledgement.
func (s *service) MarkReceived(ctx context.Context, actor auth.Actor, id int64) (*OrderDTO, error) {
	return s.UpdateStatus(ctx, actor, id, StatusInput{Status: string(enums.DeliveryStatusDelivered)})
}

// CreateShareLink returns the order's share link, minting a token the first time.
func (s *service) CreateShareLink(ctx context.Context, actor auth.Actor, id int64) (*ShareLinkDTO, error) {
	order, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning executive can share an order")
	}
	if order.ShareToken != nil && *order.ShareToken != "" {
		return s.shareLink(*order.ShareToken), nil
	}

	for attempt := 0; attempt < s.cfg.ShareTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate share token")
		}
		stored, err := s.repo.SetShareToken(ctx, id, token)
		if err != nil {
			if db.IsUniqueViolation(err, "share_token") {
				s.logg.Warn(s.logg.WithOrderID(ctx, id), "share token collision, retrying")
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store share token")
		}
		if !stored {
			// another request minted one first
			current, err := s.load(ctx, s.repo, id)
			if err != nil {
				return nil, err
			}
			if current.ShareToken == nil {
				return nil, pkgerrors.New(pkgerrors.CodeInternal, "share token not stored")
			}
			return s.shareLink(*current.ShareToken), nil
		}
		s.metrics.IncShareLink()
		s.logg.Info(s.logg.WithOrderID(ctx, id), "share link created")
		return s.shareLink(token), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique share token")
}

func (s *service) shareLink(token string) *ShareLinkDTO {
	path := PublicPathPrefix + token
	return &ShareLinkDTO{
		Token: token,
		Path:  path,
		URL:   strings.TrimRight(s.cfg.PublicBaseURL, "/") + path,
	}
}

func (s *service) GetPublic(ctx context.Context, token string) (*PublicOrderDTO, error) {
	order, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	dto := toPublicDTO(order)
	return &dto, nil
}

// SubmitPublic applies a school's one-time submission. Later submissions get
// the completed view back and change nothing.
func (s *service) SubmitPublic(ctx context.Context, token string, input PublicOrderInput) (*PublicOrderDTO, error) {
	current, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, current.ID)
	if current.IsPublicFilled {
		s.metrics.IncPublicSubmission(publicAlreadyFilled)
		dto := toPublicDTO(current)
		return &dto, nil
	}
	if current.Status != enums.DeliveryStatusPending {
		s.metrics.IncPublicSubmission(publicRejected)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer open for changes").
			WithDetails(map[string]string{"status": string(current.Status)})
	}

	draft := DraftFrom(s.catalog, current)
	if input.School != nil {
		draft.School(*input.School)
	}
	if input.Contacts != nil {
		draft.Contacts(*input.Contacts)
	}
	if input.Delivery != nil {
		draft.Delivery(*input.Delivery)
	}
	if input.Items != nil {
		parsed, err := parseItemMap(s.catalog, input.Items)
		draft.errs = multierr.Append(draft.errs, err)
		parsed.applyTo(draft, current.DiscountMode == enums.DiscountModePercent)
	}
	order, err := draft.Commit()
	if err != nil {
		s.metrics.IncPublicSubmission(publicRejected)
		return nil, err
	}
	if err := s.checkTotals(ctx, order, input.Totals); err != nil {
		s.metrics.IncPublicSubmission(publicRejected)
		return nil, err
	}

	stored, err := s.repo.SavePublicSubmission(ctx, order, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save public submission")
	}
	if !stored {
		latest, err := s.loadByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if !latest.IsPublicFilled {
			s.metrics.IncPublicSubmission(publicRejected)
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer open for changes")
		}
		s.metrics.IncPublicSubmission(publicAlreadyFilled)
		dto := toPublicDTO(latest)
		return &dto, nil
	}

	s.metrics.IncPublicSubmission(publicAccepted)
	s.logg.Info(s.logg.WithField(ctx, "net_amount", pricing.Format(order.NetAmount)), "public order submitted")
	dto := toPublicDTO(order)
	return &dto, nil
}

// checkTotals compares client-computed totals with the server's. Server
// values are always the ones stored.
func (s *service) checkTotals(ctx context.Context, order *models.Order, client *ClientTotals) error {
	if client == nil {
		return nil
	}
	server := pricing.Totals{Gross: order.TotalAmount, Discount: order.TotalDiscount, Net: order.NetAmount}
	fields := pricing.Mismatches(server, client.toPricing(), s.tolerance)
	if len(fields) == 0 {
		return nil
	}
	for _, f := range fields {
		s.metrics.IncTotalsMismatch(f)
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"mismatched_fields": fields,
		"server_net":        pricing.Format(server.Net),
	}), "client totals disagree with server totals")

	if !s.cfg.RejectTotalsMismatch {
		return nil
	}
	expected := map[string]string{
		"total_amount":   pricing.Format(server.Gross),
		"total_discount": pricing.Format(server.Discount),
		"net_amount":     pricing.Format(server.Net),
	}
	details := make(map[string]string, len(fields))
	for _, f := range fields {
		details["totals."+f] = "expected " + expected[f]
	}
	return pkgerrors.Validation("totals do not match", details)
}

func (s *service) load(ctx context.Context, repo Repository, id int64) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) loadByToken(ctx context.Context, token string) (*models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	order, err := s.repo.FindByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order by token")
	}
	return order, nil
}

func canAccess(actor auth.Actor, order *models.Order) bool {
	return actor.IsAdmin() || actor.Owns(order.UserID)
}
