package apperr

import (
	"errors"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/dbx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	MsgInvalidToken = "invalid token"
	MsgTokenExpired = "token expired"
)

// Classify maps err onto the taxonomy. Rules apply in order:
//
//  1. already classified errors are returned as is;
//  2. validation failures become BadRequest;
//  3. token signature, format and expiry failures become Unauthorized;
//  4. uniqueness violations become Conflict;
//  5. foreign key violations become BadRequest;
//  6. missing records become NotFound;
//  7. everything else is Internal.
//
// Classify(nil) returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, common.ErrorValidation):
		return BadRequest(err.Error())

	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, jwt.ErrTokenExpired):
		return Unauthorized(MsgTokenExpired)

	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return Unauthorized(MsgInvalidToken)

	case errors.Is(err, common.ErrorAlreadyExists), dbx.IsUniqueViolation(err):
		return Conflict("resource already exists")

	case dbx.IsForeignKeyViolation(err):
		return BadRequest("referenced resource does not exist")

	case errors.Is(err, common.ErrorNotFound):
		return NotFound("resource not found")
	}

	return Internal(err)
}
