package auth

import (
	"fmt"
	"sort"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RegisterRequest is the registration payload. Password rules are
// enforced by the CredentialStore.
type RegisterRequest struct {
	DisplayName string `json:"displayName" form:"displayName"`
	Email       string `json:"email" form:"email"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Password    string `json:"password" form:"password"`
}

// Validate checks shape only, region is the default phone region
func (r RegisterRequest) Validate(region string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 256), is.Email),
		validation.Field(&r.PhoneNumber, validation.Required, validation.By(ValidatePhoneNumber(region))),
		validation.Field(&r.Password, validation.Required),
	)
}

// ValidatePhoneNumber accepts numbers that are possible for region,
// or for their own country code when written in international form.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil || !phonenumbers.IsPossibleNumber(num) {
			return fmt.Errorf("must be a valid phone number")
		}
		return nil
	}
}

type AccountRoutes struct {
	Login    string
	Register string
	Current  string
	Errors   string
}

// AccountController serves the account endpoints as JSON
type AccountController struct {
	Logger      Logger
	Auth        Authenticator
	Guard       *RouteAuthenticator
	Limiter     *KeyedLimiter
	PhoneRegion string
	Routes      *AccountRoutes
}

type AccountControllerOption func(*AccountController) *AccountController

func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		ac.Logger = normalizeLogger(logger)
		return ac
	}
}

func WithRateLimiter(limiter *KeyedLimiter) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		ac.Limiter = limiter
		return ac
	}
}

func WithPhoneRegion(region string) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		if region != "" {
			ac.PhoneRegion = region
		}
		return ac
	}
}

func WithRouteAuthenticator(guard *RouteAuthenticator) AccountControllerOption {
	return func(ac *AccountController) *AccountController {
		if guard != nil {
			ac.Guard = guard
		}
		return ac
	}
}

func NewAccountController(auther Authenticator, opts ...AccountControllerOption) *AccountController {
	if auther == nil {
		panic("Missing Authenticator in account controller...")
	}

	ac := &AccountController{
		Logger:      defLogger{},
		Auth:        auther,
		PhoneRegion: "EG",
		Routes: &AccountRoutes{
			Login:    "/account/login",
			Register: "/account/register",
			Current:  "/account",
			Errors:   "/errors/:code",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			ac = opt(ac)
		}
	}

	if ac.Guard == nil {
		ac.Guard = NewHTTPAuthenticator(auther)
		ac.Guard.Logger = ac.Logger
	}

	return ac
}

// RegisterAccountRoutes mounts the account endpoints on app
func RegisterAccountRoutes(app fiber.Router, auther Authenticator, opts ...AccountControllerOption) *AccountController {
	controller := NewAccountController(auther, opts...)

	app.Post(controller.Routes.Login, RateLimit(controller.Limiter), controller.Login)
	app.Post(controller.Routes.Register, RateLimit(controller.Limiter), controller.Register)
	app.Get(controller.Routes.Current,
		controller.Guard.ProtectedRoute(),
		controller.Guard.Authenticated(controller.Current),
	)
	app.Get(controller.Routes.Errors, controller.ErrorPage)

	return controller
}

func (a *AccountController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("login parse payload", "error", err)
		return errBadBody()
	}

	if err := payload.Validate(); err != nil {
		return toValidationErrors(err)
	}

	result, err := a.Auth.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (a *AccountController) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("register parse payload", "error", err)
		return errBadBody()
	}

	if err := payload.Validate(a.PhoneRegion); err != nil {
		return toValidationErrors(err)
	}

	result, err := a.Auth.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// Current returns the signed in user with a fresh token
func (a *AccountController) Current(c *fiber.Ctx, p Principal) error {
	result, err := a.Auth.CurrentUser(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// ErrorPage re-dispatches a bare status code through the error handler
func (a *AccountController) ErrorPage(c *fiber.Ctx) error {
	code, err := strconv.Atoi(c.Params("code"))
	if err != nil || code < 400 || code > 599 {
		return fiber.NewError(fiber.StatusBadRequest)
	}
	return fiber.NewError(code)
}

func errBadBody() error {
	return errors.NewValidation("invalid request payload", errors.FieldError{
		Field:   "body",
		Message: "Request body could not be parsed.",
	})
}

// toValidationErrors turns ozzo errors into field errors sorted by name
func toValidationErrors(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, errors.CategoryInternal, "request validation failed")
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var fieldErrs errors.ValidationErrors
	for _, field := range fields {
		if verrs[field] == nil {
			continue
		}
		fieldErrs = append(fieldErrs, errors.FieldError{
			Field:   field,
			Message: verrs[field].Error(),
		})
	}
	if len(fieldErrs) == 0 {
		return nil
	}

	return errors.NewValidation("invalid request payload", fieldErrs...)
}
