// issue-service-token prints a signed JWT for machine callers of the
// /internal ops endpoints. The token is validated by middlewares.AuthMiddleware
// against the same API_SECRET the server runs with.
//
// Usage:
//   API_SECRET=... TOKEN_HOUR_LIFESPAN=1 go run ./cmd/issue-service-token
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
)

func main() {
	token, err := utils.JwtGenerate(0, "Admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
