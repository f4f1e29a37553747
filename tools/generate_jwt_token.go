// tools/generate_jwt_token.go
// This is a utility to generate JWT tokens for testing the authentication middleware
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims matches the claims structure accepted by the middleware
type JWTClaims struct {
	jwt.RegisteredClaims
	Permissions struct {
		Formats   []string `json:"formats,omitempty"`
		Creatives []string `json:"creatives,omitempty"`
	} `json:"permissions,omitempty"`
}

func main() {
	secretKey := os.Getenv("JWT_SECRET_KEY")
	if secretKey == "" {
		fmt.Println("Error: JWT_SECRET_KEY environment variable not set")
		fmt.Println("Usage: JWT_SECRET_KEY=your-secret go run generate_jwt_token.go [readonly]")
		os.Exit(1)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "adte-creative-agent",
			Subject:   "principal_test",
		},
	}

	if len(os.Args) > 1 && os.Args[1] == "readonly" {
		claims.Permissions.Formats = []string{"read"}
		claims.Permissions.Creatives = []string{"read"}
		fmt.Println("Generating token with READ-ONLY permissions")
	} else {
		claims.Permissions.Formats = []string{"read"}
		claims.Permissions.Creatives = []string{"read", "write"}
		fmt.Println("Generating token with FULL permissions")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGenerated JWT Token:")
	fmt.Println("====================")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Token Details:")
	fmt.Println("- Algorithm: HS256")
	fmt.Println("- Subject:  ", claims.Subject)
	fmt.Println("- Expires:  ", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println("- Permissions:")
	fmt.Println("  - Formats:   ", claims.Permissions.Formats)
	fmt.Println("  - Creatives: ", claims.Permissions.Creatives)
	fmt.Println()
	fmt.Println("Test commands:")
	fmt.Println("1. Build a creative with the JWT (Bearer token):")
	fmt.Printf("   curl -X POST -H \"Authorization: Bearer %s\" -d '{\"message\":\"Spring sale\",\"format_id\":\"display_300x250_image\"}' http://localhost:8080/build_creative\n", tokenString)
	fmt.Println()
	fmt.Println("2. Build a creative with an API key (ADCP_API_KEY):")
	fmt.Println("   curl -X POST -H \"X-API-Key: $ADCP_API_KEY\" -d '{\"message\":\"Spring sale\",\"format_id\":\"display_300x250_image\"}' http://localhost:8080/build_creative")
	fmt.Println()
	fmt.Println("3. Public catalog, no credentials:")
	fmt.Println("   curl http://localhost:8080/formats?type=display")
}
