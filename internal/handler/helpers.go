package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"roastkit/internal/apierror"
	"roastkit/internal/middleware"
	"roastkit/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// maxPhotoBytes caps sack and result photos.
const maxPhotoBytes = 10 << 20

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

// bindFormOrJSON accepts multipart forms (used when a photo is attached)
// and plain JSON bodies on the same route.
func bindFormOrJSON(c *gin.Context, req interface{}) bool {
	if !isMultipart(c) {
		return bindAndValidate(c, req)
	}
	if err := c.ShouldBind(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid form: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// parseID reads a uuid path parameter, writing a 400 when it is malformed.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// readPhoto returns the uploaded file under field, or nil when none was sent.
func readPhoto(c *gin.Context, field string) (*service.Photo, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return openPhoto(fh)
}

func openPhoto(fh *multipart.FileHeader) (*service.Photo, error) {
	if fh.Size > maxPhotoBytes {
		return nil, errors.New("photo exceeds 10 MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return nil, err
	}
	return &service.Photo{Data: data, ContentType: fh.Header.Get("Content-Type"), Filename: fh.Filename}, nil
}

// respondError maps domain errors to HTTP statuses. Unknown errors are
// handed to the ErrorHandler middleware, which logs them and answers 500.
func respondError(c *gin.Context, err error) {
	var stockErr *service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, apierror.NewStock(err.Error(), stockErr.Available, stockErr.Requested))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
	case errors.Is(err, service.ErrAlreadyFinished),
		errors.Is(err, service.ErrRoastInProgress),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrUserHasBatches):
		c.JSON(http.StatusConflict, apierror.New(err.Error()))
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidWeight),
		errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidReading),
		errors.Is(err, service.ErrInvalidFinish),
		errors.Is(err, service.ErrInvalidCounter):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, apierror.New(err.Error()))
	case errors.Is(err, service.ErrUploadFailed):
		log.Warn().Err(err).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("upload failed")
		c.JSON(http.StatusBadGateway, apierror.New(service.ErrUploadFailed.Error()))
	default:
		_ = c.Error(err)
	}
}
