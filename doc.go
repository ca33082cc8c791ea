// Package mockhttp is a per-test, ephemeral HTTP/1.1 and HTTP/2 (h2c) mock
// server: declare expectations ("mocks") against a Server, issue requests
// against its URL from the code under test, and assert on hit counts.
//
// # Basic usage
//
//	srv, err := mockhttp.NewServer()
//	if err != nil {
//		t.Fatal(err)
//	}
//	defer srv.Release()
//
//	hello, err := srv.Mock(http.MethodGet, "/hello").
//		WithStatus(201).
//		WithBody([]byte("world")).
//		Create()
//	if err != nil {
//		t.Fatal(err)
//	}
//
//	resp, _ := http.Get(srv.URL() + "/hello")
//	// resp.StatusCode == 201, body == "world"
//	hello.Assert(t)
//
// # Matchers
//
// Matcher constructors (Exact, Regex, Any, Missing, AllOf, AnyOf, Json,
// PartialJson, Binary, UrlEncodedBody, UrlEncodedQuery...) build the predicates attached via
// MatchHeader/MatchQuery/MatchBody. See DESIGN.md for the full matching
// algebra.
//
// # Concurrency
//
// A Server's registry and diagnostic rings are guarded by one mutex; hit
// counters are atomic. NewServerContext/CreateContext (and Pool's
// AcquireContext) take a context.Context for callers that want a suspension
// point instead of a blocking call; the non-Context forms simply pass
// context.Background(). Assert and Remove have no Context form.
package mockhttp
