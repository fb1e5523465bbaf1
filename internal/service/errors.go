package service

import (
	"strings"

	"go-pos-sync/pkg/database"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/validator"
)

// storeError maps a repository failure onto the public error taxonomy.
func storeError(err error, notFoundMsg, internalMsg string) error {
	if err == nil {
		return nil
	}
	if apperrors.As(err) != nil {
		return err
	}
	if database.IsNotFound(err) {
		return apperrors.New(apperrors.CodeNotFound, notFoundMsg)
	}
	if database.IsUniqueViolation(err, "") {
		return apperrors.Wrap(apperrors.CodeConflict, err, "record already exists")
	}
	return apperrors.Wrap(apperrors.CodeInternal, err, internalMsg)
}

// validationError turns validator output into a VALIDATION_ERROR with field details.
func validationError(errs []*validator.ErrorResponse) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return apperrors.New(apperrors.CodeValidation, strings.Join(msgs, "; ")).WithDetails(errs)
}

func validate(v interface{}) error {
	return validationError(validator.ValidateStruct(v))
}
