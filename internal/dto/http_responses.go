package dto

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	ShortAlreadyExists = "SHORT_ALREADY_EXISTS"
	RedirectNotFound   = "REDIRECT_NOT_FOUND"
	Unauthorized       = "UNAUTHORIZED"
	PasswordRequired   = "PASSWORD_REQUIRED"
	PasswordInvalid    = "PASSWORD_INVALID"
	RedirectPending    = "REDIRECT_PENDING"
)

type Response struct {
	Status string      `json:"status"`
	Error  *Error      `json:"error,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(http.StatusBadRequest, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(http.StatusInternalServerError, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func ShortAlreadyExistsError(c *ginext.Context) {
	BadResponseError(c, ShortAlreadyExists, "Short code already exists")
}

func NotFoundError(c *ginext.Context) {
	c.JSON(http.StatusNotFound, Response{
		Status: "error",
		Error: &Error{
			Code: RedirectNotFound,
			Desc: "Redirect not found",
		},
	})
}

func UnauthorizedError(c *ginext.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: "Authentication required",
		},
	})
}

func PasswordRequiredResponse(c *ginext.Context, shortCode string) {
	c.JSON(http.StatusUnauthorized, Response{
		Status: "error",
		Error: &Error{
			Code: PasswordRequired,
			Desc: "Short link '" + shortCode + "' requires a password",
		},
	})
}

func PasswordInvalidError(c *ginext.Context) {
	c.JSON(http.StatusUnauthorized, Response{
		Status: "error",
		Error: &Error{
			Code: PasswordInvalid,
			Desc: "Incorrect password",
		},
	})
}

func PendingResponse(c *ginext.Context) {
	c.JSON(http.StatusOK, Response{
		Status: "pending",
		Data:   map[string]string{"message": "This link is not configured yet. Check back soon."},
	})
}

func SuccessResponse(c *ginext.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessNoContent(c *ginext.Context) {
	c.Status(http.StatusNoContent)
}
