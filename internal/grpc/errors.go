package grpc

import (
	"simple-chat/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CodeFor 領域錯誤分類對應的 gRPC 狀態碼.
func CodeFor(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindPreconditionFailed:
		return codes.FailedPrecondition
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindInvalidRequest:
		return codes.InvalidArgument
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindExternalDependency:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus 只帶出可公開的訊息.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(CodeFor(domain.KindOf(err)), domain.PublicMessage(err))
}
