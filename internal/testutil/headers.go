package testutil

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// RequestHeaders returns the headers optFns add to an outgoing request. It
// runs their API options on an empty middleware stack and captures the
// request once the build step has finished.
func RequestHeaders(optFns []func(*s3.Options)) http.Header {
	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}

	stack := middleware.NewStack("headers", smithyhttp.NewStackRequest)
	for _, apply := range o.APIOptions {
		if err := apply(stack); err != nil {
			return nil
		}
	}

	header := http.Header{}
	capture := middleware.HandlerFunc(func(_ context.Context, in interface{}) (interface{}, middleware.Metadata, error) {
		if req, ok := in.(*smithyhttp.Request); ok {
			header = req.Header.Clone()
		}
		return nil, middleware.Metadata{}, nil
	})
	_, _, _ = middleware.DecorateHandler(capture, stack).Handle(context.Background(), struct{}{})
	return header
}
