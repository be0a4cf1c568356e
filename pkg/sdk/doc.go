// Package sdk provides a Go client for the bookdex semantic book search API.
//
//	client := sdk.New("http://localhost:8080",
//	    sdk.WithAPIKey("secret"),
//	)
//	resp, err := client.Search(ctx, "space opera with political intrigue", 5)
//	for _, hit := range resp.Results {
//	    fmt.Println(hit.Title, hit.Score)
//	}
//
// Similar finds books close to a known one by its catalog key:
//
//	resp, err := client.Similar(ctx, "OL893415W", 10)
package sdk
