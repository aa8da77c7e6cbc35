package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"tamasha/internal/types"
)

// tmdbAPIBase is the public TMDB v3 API root.
const tmdbAPIBase = "https://api.themoviedb.org/3"

// tmdbDefaultLanguage is the catalog language sent with every lookup.
const tmdbDefaultLanguage = "fa-IR"

// maxTMDBBody caps how much of a details response is read.
const maxTMDBBody = 1 << 20

// TMDBClientConfig holds the configuration for creating a TMDBClient.
type TMDBClientConfig struct {
	APIKey   types.SecretString
	BaseURL  string // defaults to tmdbAPIBase
	Language string // defaults to fa-IR
	Logger   *slog.Logger
}

// tmdbDetails is the subset of the movie/tv details payload the refresher
// needs. Pointers distinguish a missing field from a zero value.
type tmdbDetails struct {
	VoteAverage *float64 `json:"vote_average" validate:"required,gte=0,lte=10"`
	VoteCount   *int     `json:"vote_count" validate:"required,gte=0"`
}

// TMDBClient fetches ratings from The Movie Database.
type TMDBClient struct {
	base     *BaseClient
	apiKey   types.SecretString
	baseURL  string
	language string
	validate *validator.Validate
	logger   *slog.Logger
}

// userAgent identifies the jobs to metadata providers.
const userAgent = "Tamasha-Jobs/1.0"

// NewTMDBClient creates a TMDBClient. Each lookup is sent exactly once and the
// httpClient timeout bounds it.
func NewTMDBClient(httpClient *http.Client, cfg TMDBClientConfig) *TMDBClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = tmdbAPIBase
	}
	language := cfg.Language
	if language == "" {
		language = tmdbDefaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TMDBClient{
		base:     NewBaseClient(httpClient, userAgent),
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: language,
		validate: validator.New(),
		logger:   logger,
	}
}

// FetchRating issues GET {base}/{movie|tv}/{id}?api_key=...&language=... and
// returns the vote average and vote count. Every failure is an AppError:
// an unknown content type is a validation error, a 404 is upstream_not_found,
// other non-2xx statuses and transport failures are upstream errors, and a
// body without both vote fields is upstream_malformed_response.
func (c *TMDBClient) FetchRating(ctx context.Context, ref types.ContentMetadataRef) (types.ExternalRating, error) {
	endpoint, err := ref.Type.ExternalEndpoint()
	if err != nil {
		return types.ExternalRating{}, err
	}
	if ref.ExternalID == "" {
		return types.ExternalRating{}, types.NewAppError(types.ErrCodeValidationMissingField, "content has no external id", nil)
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey.Unmask())
	q.Set("language", c.language)
	target := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, endpoint, url.PathEscape(ref.ExternalID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.ExternalRating{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create TMDB request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.ExternalRating{}, c.redact(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.ExternalRating{}, types.NewAppError(
			types.ErrCodeUpstreamNotFound,
			fmt.Sprintf("TMDB has no %s with id %s", endpoint, ref.ExternalID),
			nil,
		)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.ExternalRating{}, c.handleErrorResponse(resp)
	}

	var details tmdbDetails
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTMDBBody)).Decode(&details); err != nil {
		return types.ExternalRating{}, types.NewAppError(types.ErrCodeUpstreamMalformedResponse, "failed to decode TMDB details", err)
	}
	if err := c.validate.Struct(details); err != nil {
		return types.ExternalRating{}, types.NewAppError(types.ErrCodeUpstreamMalformedResponse, "TMDB details missing rating fields", err)
	}

	return types.ExternalRating{
		VoteAverage: *details.VoteAverage,
		VoteCount:   *details.VoteCount,
	}, nil
}

// handleErrorResponse maps a 4xx response that BaseClient passed through.
func (c *TMDBClient) handleErrorResponse(resp *http.Response) error {
	var body struct {
		StatusMessage string `json:"status_message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	msg := fmt.Sprintf("TMDB returned %d", resp.StatusCode)
	if body.StatusMessage != "" {
		msg += ": " + body.StatusMessage
	}
	return types.NewAppError(types.ErrCodeUpstreamMetadata, msg, nil).
		WithDetails(map[string]any{"status": resp.StatusCode})
}

// redact scrubs the API key from any *url.Error in the chain; net/http puts
// the full request URL into transport errors.
func (c *TMDBClient) redact(err error) error {
	var urlErr *url.Error
	if c.apiKey.IsZero() || !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey.Unmask()), "REDACTED")
	return err
}
