package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

var validate = validator.New()

// GetOperator returns the API key name the auth middleware stored for the request.
func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals("operator").(string)
	return operator
}

// parseBody decodes the JSON body into dst and validates its tags.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, err, "unable to parse json")
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.InvalidInput, "invalid id %q", c.Params("id"))
	}
	return id, nil
}

func parsePlatform(c *fiber.Ctx) (models.Platform, error) {
	p, ok := models.ParsePlatform(c.Params("platform"))
	if !ok {
		return "", apperr.Newf(apperr.Unsupported, "unsupported platform %q", c.Params("platform"))
	}
	return p, nil
}

func toPlatforms(names []string) []models.Platform {
	out := make([]models.Platform, len(names))
	for i, n := range names {
		out[i] = models.Platform(n)
	}
	return out
}

func decodeUploads(encoded []string) ([][]byte, error) {
	out := make([][]byte, 0, len(encoded))
	for i, e := range encoded {
		data, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, apperr.Newf(apperr.InvalidInput, "upload %d is not valid base64", i+1)
		}
		out = append(out, data)
	}
	return out, nil
}

func postOptions(req transfer.PublishRequest) (service.PostOptions, error) {
	uploads, err := decodeUploads(req.Uploads)
	if err != nil {
		return service.PostOptions{}, err
	}
	return service.PostOptions{
		Media:    req.Media,
		Uploads:  uploads,
		Tone:     req.Tone,
		Category: req.Category,
	}, nil
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput, apperr.ContentTooLong, apperr.TooManyHashtags, apperr.MediaRequired,
		apperr.MissingCredentials, apperr.Unsupported:
		return fiber.StatusBadRequest
	case apperr.InvalidToken:
		return fiber.StatusUnauthorized
	case apperr.NotFound:
		return fiber.StatusNotFound
	case apperr.AccountNotConfigured, apperr.AccountNotConnected, apperr.InvalidState:
		return fiber.StatusConflict
	case apperr.RateLimitExceeded:
		return fiber.StatusTooManyRequests
	case apperr.TransportError, apperr.ProtocolError, apperr.ProviderRejected, apperr.AnalyticsUnavailable:
		return fiber.StatusBadGateway
	case apperr.ProcessingTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func retrySeconds(err error) int {
	return int(math.Ceil(apperr.RetryAfter(err).Seconds()))
}

// writeError renders err as an ErrorResponse with the status of its kind.
func writeError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fe.Namespace()
		}
		return c.Status(fiber.StatusBadRequest).JSON(transfer.ErrorResponse{
			Error:  "request validation failed",
			Kind:   string(apperr.InvalidInput),
			Fields: fields,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(transfer.ErrorResponse{Error: fe.Message})
	}

	kind := apperr.KindOf(err)
	status := statusOf(kind)
	resp := transfer.ErrorResponse{Error: err.Error(), Kind: string(kind)}
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		resp.Error = "internal error"
	}
	if secs := retrySeconds(err); secs > 0 {
		resp.RetryAfter = secs
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}
	return c.Status(status).JSON(resp)
}

// ErrorHandler is the fiber fallback for errors returned by handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return writeError(c, err)
}

func publishResults(results map[models.Platform]service.PublishResult) map[models.Platform]transfer.PlatformResult {
	out := make(map[models.Platform]transfer.PlatformResult, len(results))
	for p, r := range results {
		out[p] = platformResult(r.PostID, r.SocialPostID, r.Err)
	}
	return out
}

func scheduleResults(results map[models.Platform]service.ScheduleResult) map[models.Platform]transfer.PlatformResult {
	out := make(map[models.Platform]transfer.PlatformResult, len(results))
	for p, r := range results {
		out[p] = platformResult("", r.SocialPostID, r.Err)
	}
	return out
}

func platformResult(postID string, socialPostID int64, err error) transfer.PlatformResult {
	r := transfer.PlatformResult{Success: err == nil, PostID: postID, SocialPostID: socialPostID}
	if err != nil {
		r.Error = err.Error()
		r.Kind = string(apperr.KindOf(err))
		r.RetryAfter = retrySeconds(err)
	}
	return r
}

// multiStatus is 200 when every platform succeeded, the shared failure status when
// all failed alike, and 207 otherwise.
func multiStatus(results map[models.Platform]transfer.PlatformResult) int {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return fiber.StatusOK
	case ok > 0:
		return fiber.StatusMultiStatus
	}
	status := 0
	for _, r := range results {
		s := statusOf(apperr.Kind(r.Kind))
		if status != 0 && s != status {
			return fiber.StatusMultiStatus
		}
		status = s
	}
	return status
}
