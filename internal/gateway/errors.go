package gateway

import "errors"

// Error taxonomy for gateway calls. Auth and validation failures are
// permanent; transport failures may be retried by the caller.
var (
	ErrGatewayAuth       = errors.New("gateway rejected the credential")
	ErrGatewayValidation = errors.New("gateway rejected the request")
	ErrGatewayTransport  = errors.New("gateway unreachable")
	ErrMissingCredential = errors.New("owner has no gateway credential")
)
