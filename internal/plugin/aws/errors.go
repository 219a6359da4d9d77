package aws

import (
	"context"
	"errors"
	"fmt"
	"net"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// classify wraps an AWS call error with the operation name and a usage kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	return usage.Wrap(kindOf(err), wrapped)
}

func kindOf(err error) usage.Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return usage.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return usage.KindTransient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindOfCode(apiErr.ErrorCode()); ok {
			return kind
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == 401 || status == 403:
			return usage.KindAuthorization
		case status == 429 || status >= 500:
			return usage.KindTransient
		}
	}

	if apiErr != nil && apiErr.ErrorFault() == smithy.FaultServer {
		return usage.KindTransient
	}

	var deserErr *smithy.DeserializationError
	if errors.As(err, &deserErr) {
		return usage.KindMalformedResponse
	}

	// An endpoint that does not resolve means the service is not offered in the region.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return usage.KindUnsupported
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return usage.KindTransient
	}

	return usage.KindUnknown
}

func kindOfCode(code string) (usage.Kind, bool) {
	switch code {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "UnauthorizedAccess",
		"AuthFailure", "AuthorizationError", "NotAuthorized", "UnrecognizedClientException",
		"InvalidClientTokenId", "SignatureDoesNotMatch", "ExpiredToken", "ExpiredTokenException",
		"MissingAuthenticationToken", "OptInRequired":
		return usage.KindAuthorization, true
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException",
		"RequestThrottled", "RequestThrottledException", "ProvisionedThroughputExceededException",
		"ServiceUnavailable", "ServiceUnavailableException", "InternalFailure", "InternalError",
		"InternalServerError", "InternalServiceError", "InternalServerException", "ServerException",
		"RequestTimeout", "RequestTimeoutException":
		return usage.KindTransient, true
	case "UnsupportedOperation", "UnsupportedOperationException", "InvalidAction",
		"UnknownOperationException", "UnsupportedFeatureException":
		return usage.KindUnsupported, true
	}
	return "", false
}
