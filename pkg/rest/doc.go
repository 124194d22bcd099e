// Package rest turns declared client types into working REST calls.
//
// A client type is declared once at startup with Define and the builders on
// Definition and Method. The declarations are recorded in a metadata.Store;
// each call reads them back, assembles a Request from the instance and the
// call arguments, consults the response cache and sends the request through
// the client's Transport.
//
// # Declaring a client
//
//	type PostsAPI struct {
//		*rest.Client
//		Token string
//	}
//
//	var posts = rest.Define[*PostsAPI]("PostsAPI").
//		BaseURL("https://api.example.com").
//		HeaderField("Authorization", rest.Computed(func(a *PostsAPI) []string {
//			return []string{"Bearer " + a.Token}
//		}))
//
//	var getPost = posts.GET("GetPost", "/posts/{id}").
//		Path(0, "id").
//		Cache(rest.CacheFor(time.Minute))
//
//	func (a *PostsAPI) GetPost(ctx context.Context, id int) (*rest.Response, error) {
//		return getPost.Invoke(ctx, a, id)
//	}
//
// # Request assembly
//
// Path placeholders are substituted first. Base URL, headers and query
// parameters resolve concurrently; headers and query parameters merge
// property-bound, class-wide and method entries in that order, and values
// under one name accumulate. The body is multipart when any bound argument is
// a File, the raw value for a lone unnamed binding, and a JSON object
// otherwise.
//
// # Errors
//
// Failures are *Error values with a Kind. Configuration errors (no client or
// transport) are returned before anything runs and never reach the error
// handler installed with OnError. Assembly and transport errors do.
package rest
