package sync

import (
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/iancoleman/strcase"
)

// forbiddenURLChars may not appear anywhere in an endpoint URL.
const forbiddenURLChars = "<>\"'{}|\\^`"

var streamNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// a single instance caches struct info
var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		return datePrefix.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := validate.RegisterTranslation("iso8601", trans, func(t ut.Translator) error {
		return t.Add("iso8601", "{0} must be an ISO-8601 timestamp", true)
	}, func(t ut.Translator, fe validator.FieldError) string {
		msg, _ := t.T("iso8601", fe.Field())
		return msg
	}); err != nil {
		panic(err)
	}
}

// validateStruct checks struct tags, reporting the first violation.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return &ConfigurationError{Field: errs[0].Field(), Message: errs[0].Translate(trans)}
	}
	return &ConfigurationError{Message: err.Error()}
}

// ValidateURL accepts only absolute https URLs with a host and none of the
// characters in forbiddenURLChars.
func ValidateURL(endpointURL string) error {
	if strings.TrimSpace(endpointURL) == "" {
		return configErrorf("endpoint_url", "Endpoint URL cannot be empty")
	}
	if i := strings.IndexAny(endpointURL, forbiddenURLChars); i >= 0 {
		return configErrorf("endpoint_url", "Endpoint URL %q contains invalid character %q", endpointURL, endpointURL[i])
	}
	u, err := url.Parse(endpointURL)
	if err != nil {
		return configErrorf("endpoint_url", "Endpoint URL %q is malformed: %v", endpointURL, err)
	}
	if u.Scheme != "https" {
		return configErrorf("endpoint_url", "Endpoint URL %q must use HTTPS", endpointURL)
	}
	if u.Host == "" {
		return configErrorf("endpoint_url", "Endpoint URL %q must have a host", endpointURL)
	}
	return nil
}

// ValidateStreamName accepts lowercase snake case identifiers.
func ValidateStreamName(name string) error {
	if name == "" {
		return configErrorf("name", "Stream name cannot be empty")
	}
	if !streamNamePattern.MatchString(name) {
		return configErrorf("name", "Stream name %q is invalid: must start with a lowercase letter and contain only lowercase letters, digits and underscores", name)
	}
	return nil
}

// StreamName returns the configured name, or one derived from the last
// path segment of the endpoint URL ("all-hub-vacancies" becomes
// "all_hub_vacancies").
func StreamName(ep Endpoint) string {
	if ep.Name != "" {
		return ep.Name
	}
	u, err := url.Parse(ep.EndpointURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return strcase.ToSnake(segments[len(segments)-1])
}

// Validate checks everything that can be checked without the network, in
// the order an operator should fix things.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return configErrorf("endpoints", "No endpoints configured")
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return configErrorf("api_token", "API Token is required")
	}
	if err := validateStruct(c); err != nil {
		return err
	}
	for _, ep := range c.Endpoints {
		if _, err := NewStreamConfig(c, ep); err != nil {
			return err
		}
	}
	return nil
}

// StreamConfig is the validated, immutable configuration of one stream.
type StreamConfig struct {
	Name           string
	EndpointURL    string
	APIToken       string
	PageSize       int
	RequestTimeout time.Duration
	MaxRetries     int
	InterPageDelay time.Duration
	StartCursor    string
}

// NewStreamConfig validates one endpoint against the shared settings.
// It never returns a partially valid StreamConfig.
func NewStreamConfig(c Config, ep Endpoint) (StreamConfig, error) {
	var result StreamConfig
	name := StreamName(ep)
	if err := ValidateStreamName(name); err != nil {
		return result, err
	}
	if err := ValidateURL(ep.EndpointURL); err != nil {
		return result, err
	}
	if err := validateStruct(c); err != nil {
		return result, err
	}
	startCursor := c.StartDate
	if startCursor == "" {
		startCursor = DefaultStartDate
	}
	return StreamConfig{
		Name:           name,
		EndpointURL:    ep.EndpointURL,
		APIToken:       c.APIToken,
		PageSize:       c.PageSize,
		RequestTimeout: seconds(c.RequestTimeout),
		MaxRetries:     c.MaxRetries,
		InterPageDelay: seconds(c.InterPageDelay),
		StartCursor:    startCursor,
	}, nil
}
