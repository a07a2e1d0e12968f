package aws

import (
	"context"
	"errors"
	"net"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"

	"github.com/projecteru2/remote/provider"
)

// EC2 error codes grouped by provider.ErrorKind.
var errorCodes = map[string]provider.ErrorKind{
	"AuthFailure":           provider.KindAuth,
	"UnauthorizedOperation": provider.KindAuth,
	"InvalidClientTokenId":  provider.KindAuth,
	"SignatureDoesNotMatch": provider.KindAuth,
	"ExpiredToken":          provider.KindAuth,
	"RequestExpired":        provider.KindAuth,
	"OptInRequired":         provider.KindAuth,

	"InvalidInstanceID.NotFound":  provider.KindNotFound,
	"InvalidInstanceID.Malformed": provider.KindNotFound,

	"RequestLimitExceeded": provider.KindRateLimited,
	"Throttling":           provider.KindRateLimited,
	"ThrottlingException":  provider.KindRateLimited,

	"ServiceUnavailable":           provider.KindUnavailable,
	"Unavailable":                  provider.KindUnavailable,
	"InternalError":                provider.KindUnavailable,
	"InsufficientInstanceCapacity": provider.KindUnavailable,

	"IncorrectInstanceState": provider.KindInvalidState,
	"IncorrectState":         provider.KindInvalidState,
}

// classify maps an SDK error onto the provider taxonomy.
func classify(err error) provider.ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return provider.KindOther
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := errorCodes[apiErr.ErrorCode()]; ok {
			return kind
		}
	}
	var profileErr awsconfig.SharedConfigProfileNotExistError
	if errors.As(err, &profileErr) {
		return provider.KindAuth
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatusCode(); {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return provider.KindAuth
		case code == http.StatusTooManyRequests:
			return provider.KindRateLimited
		case code >= http.StatusInternalServerError:
			return provider.KindUnavailable
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return provider.KindUnavailable
	}
	return provider.KindOther
}

// wrap turns an SDK error into a *provider.Error. A nil err stays nil.
func wrap(op, instanceID string, err error) error {
	if err == nil {
		return nil
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return err
	}
	return provider.NewError(classify(err), op, instanceID, err)
}
