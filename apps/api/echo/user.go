package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/user"
)

var errProfileNotFoundInCtx = errors.New("profile object not found in echo.Context")

type userApi struct {
	svc      *user.Service
	results  *clustering.Service
	registry *identity.Registry
	tokens   *tokenizer
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, auth, admin echo.MiddlewareFunc, tokens *tokenizer, deps ServerDeps) {
	api := userApi{
		svc:      deps.UserSvc,
		results:  deps.ClusteringSvc,
		registry: deps.Registry,
		tokens:   tokens,
		validate: deps.Validate,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)

	// authed endpoints
	ag := ug.Group("", auth)
	ag.POST("/logout", api.logout)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me/profile", api.completeProfile)
	ag.PUT("/me/password", api.changePassword)
	ag.GET("/me/results", api.myResults)

	// admin endpoints
	ag.GET("", api.query, admin)
	ag.POST("", api.create, admin)
	ag.DELETE("", api.destroyMultiple, admin)
	ag.GET("/roles", api.queryRoles, admin)

	dg := ag.Group("/:id", admin, api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	client := identity.NewClient(api.registry.Backend())
	p, err := api.svc.Login(ctx.Request().Context(), client, data.IDNumber, data.Password)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}

	claims := api.tokens.Claims(p.Principal())
	token, err := api.tokens.Generate(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	api.registry.Put(claims.Id, client)

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: p, NeedsCompletion: p.NeedsCompletion()})
}

func (api *userApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	api.registry.Close(claims.Id)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if api.tokens.RefreshExpired(claims) {
		api.registry.Close(claims.Id)
		return errRefreshExpired
	}

	p, err := api.svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			api.registry.Close(claims.Id)
			return errUnauthorized
		}
		return errors.Wrap(err, "finding profile by ID")
	}

	newClaims := api.tokens.Claims(p.Principal(), claims.OrigIssuedAt)
	token, err := api.tokens.Generate(newClaims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	client, ok := api.registry.Rekey(claims.Id, newClaims.Id)
	if !ok {
		return errSessionExpired
	}
	client.SetPrincipal(p.Principal())

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: p, NeedsCompletion: p.NeedsCompletion()})
}

func (api *userApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	p, err := api.svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "finding profile by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) completeProfile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data user.CompleteProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteProfile")
	}
	p, err := api.svc.CompleteProfile(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "completing profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	client, err := getContextClient(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context client")
	}
	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = api.svc.ChangePassword(ctx.Request().Context(), client, claims.Subject, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, core.SuccessSummary("Password changed."))
}

func (api *userApi) myResults(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	results, err := api.results.QueryResults(ctx.Request().Context(), clustering.ResultFilter{UserID: claims.Subject})
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.Profile{})
	}
	filter.Clean()
	profiles, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if profiles == nil {
		profiles = []user.Profile{}
	}
	return ctx.JSON(http.StatusOK, profiles)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProfile")
	}
	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating profile")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	p, ok := ctx.Get("object").(user.Profile)
	if !ok {
		return errors.Wrap(errProfileNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) update(ctx echo.Context) error {
	p, ok := ctx.Get("object").(user.Profile)
	if !ok {
		return errors.Wrap(errProfileNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}

	// admins cannot demote themselves
	if claims, err := getContextClaims(ctx); err == nil && claims.Subject == p.ID && data.Role != "" && data.Role != p.Role {
		return errHttpForbidden
	}

	p, err := api.svc.Update(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) destroy(ctx echo.Context) error {
	p, ok := ctx.Get("object").(user.Profile)
	if !ok {
		return errors.Wrap(errProfileNotFoundInCtx, "retrieving object from context")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if p.ID == claims.Subject {
		return errCannotDeleteSelf
	}

	if err := api.svc.Delete(ctx.Request().Context(), p.ID); err != nil {
		return errors.Wrap(err, "deleting profile")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, claims.Subject); i < len(query.IDs) && query.IDs[i] == claims.Subject {
		return errCannotDeleteSelf
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting profiles")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding profile by ID")
		}
		ctx.Set("object", p)
		return next(ctx)
	}
}

type (
	LoginRequest struct {
		IDNumber string `json:"id_number" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token           string       `json:"token"`
		User            user.Profile `json:"user"`
		NeedsCompletion bool         `json:"needs_completion"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.IDNumber = core.CleanString(lr.IDNumber)
	return validate.Struct(lr)
}
