package dispatches

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/schoolorders-backend/api/middleware"
	"github.com/angelmondragon/schoolorders-backend/api/responses"
	"github.com/angelmondragon/schoolorders-backend/api/validators"
	internaldispatches "github.com/angelmondragon/schoolorders-backend/internal/dispatches"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

func Create(svc internaldispatches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		actor, err := middleware.MustActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body internaldispatches.CreateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispatch, err := svc.Create(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dispatch)
	}
}

func List(svc internaldispatches.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		actor, err := middleware.MustActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), actor, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internaldispatches.Service, logg *logger.Logger) http.HandlerFunc {
	return byID(svc, logg, func(s internaldispatches.Service) action { return s.Get })
}

// MarkDispatched moves the dispatch and everything linked to it to dispatched.
func MarkDispatched(svc internaldispatches.Service, logg *logger.Logger) http.HandlerFunc {
	return byID(svc, logg, func(s internaldispatches.Service) action { return s.MarkDispatched })
}

// MarkDelivered cascades delivered to the dispatch's orders and support requests.
func MarkDelivered(svc internaldispatches.Service, logg *logger.Logger) http.HandlerFunc {
	return byID(svc, logg, func(s internaldispatches.Service) action { return s.MarkDelivered })
}

type action func(ctx context.Context, actor auth.Actor, id int64) (*internaldispatches.DispatchDTO, error)

func byID(svc internaldispatches.Service, logg *logger.Logger, pick func(internaldispatches.Service) action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		actor, err := middleware.MustActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathInt64(chi.URLParam(r, "dispatchId"), "dispatchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispatch, err := pick(svc)(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispatch)
	}
}
