package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

// City name bounds in runes.
const (
	CityMinLen = 2
	CityMaxLen = 50
)

// ErrInvalid wraps every validation failure returned by Struct.
var ErrInvalid = errors.New("invalid input")

// ErrCityEmpty is returned when a city name is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city name is required")

// ErrCityLength is returned when a city name is outside CityMinLen..CityMaxLen runes.
var ErrCityLength = errors.New("city name length out of range")

// ErrCityInvalidChars is returned when a city name contains anything but letters and spaces.
var ErrCityInvalidChars = errors.New("city name must contain only letters")

// ErrCoordinatesRange is returned for a latitude outside [-90,90] or a longitude outside [-180,180].
var ErrCoordinatesRange = errors.New("coordinates out of range")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	if err := v.RegisterValidation("city", func(fl validator.FieldLevel) bool {
		_, err := ValidateCity(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidateCity trims the input and enforces length bounds (2..50 runes) and the
// character set: letters (any script) and spaces. Returns the trimmed name or
// an error suitable for a 400 INVALID_INPUT response.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if n < CityMinLen || n > CityMaxLen {
		return "", ErrCityLength
	}
	for _, c := range r {
		if !unicode.IsLetter(c) && c != ' ' {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// ValidateCoordinates checks latitude and longitude ranges. NaN and infinities are rejected.
func ValidateCoordinates(c models.Coordinates) error {
	if err := validate.Var(c.Latitude, "latitude"); err != nil {
		return fmt.Errorf("%w: latitude %v", ErrCoordinatesRange, c.Latitude)
	}
	if err := validate.Var(c.Longitude, "longitude"); err != nil {
		return fmt.Errorf("%w: longitude %v", ErrCoordinatesRange, c.Longitude)
	}
	return nil
}

// FieldError describes the first failing field of a struct.
type FieldError struct {
	Field string
	Tag   string
	Param string
	cause error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: failed %q", e.Field, e.Tag)
	if e.Param != "" {
		msg += "=" + e.Param
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes ErrInvalid and, for city fields, the specific city error.
func (e *FieldError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrInvalid, e.cause}
	}
	return []error{ErrInvalid}
}

// Struct validates s by its `validate` tags and returns a *FieldError for the
// first failure. Field names follow json, then yaml tags.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	fe := verrs[0]
	out := &FieldError{Field: fe.Namespace(), Tag: fe.Tag(), Param: fe.Param()}
	if i := strings.Index(out.Field, "."); i >= 0 {
		out.Field = out.Field[i+1:]
	}
	switch fe.Tag() {
	case "city":
		_, out.cause = ValidateCity(fmt.Sprint(fe.Value()))
	case "required":
		if fe.Kind() == reflect.String && strings.HasSuffix(fe.Field(), "city") {
			out.cause = ErrCityEmpty
		}
	}
	return out
}

// MessageRU returns the Russian text shown next to a form field for err.
func MessageRU(err error) string {
	switch {
	case errors.Is(err, ErrCityEmpty):
		return "Название города обязательно"
	case errors.Is(err, ErrCityLength):
		return fmt.Sprintf("Название города должно быть от %d до %d символов", CityMinLen, CityMaxLen)
	case errors.Is(err, ErrCityInvalidChars):
		return "Название города должно содержать только буквы"
	case errors.Is(err, ErrCoordinatesRange):
		return "Координаты вне допустимого диапазона"
	default:
		return "Некорректные данные"
	}
}
