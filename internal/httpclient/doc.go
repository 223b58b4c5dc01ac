// Package httpclient builds order submission requests and the HTTP client
// that carries them.
//
// [NewRequestBuilder] captures the target URL and the static headers (extra
// headers, X-API-Key, Content-Type) once; [RequestBuilder.Build] then
// stamps each request with its JSON body and Idempotency-Key:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, body, "load-1")
//
// [NewClient] returns an *http.Client whose idle pool is sized to the run's
// concurrency so connections are reused between dispatches.
package httpclient
