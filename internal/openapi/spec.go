// Package openapi generates the OpenAPI 3.1 description of the steeple API.
// The surface is fixed, so the document is built once and served as-is.
package openapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/steeplehq/steeple/internal/resource"
)

// Generate builds the OpenAPI document for the full API surface.
func Generate() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Steeple API",
			Description: "Church administration REST API: authentication, dashboard collections, settings, and user management.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: "/api/v1"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					},
				},
			},
		},
	}
	doc.Components.Schemas["User"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"email":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
				"name":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"role":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"createdAt": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
	doc.Components.Schemas["Document"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:                 &openapi3.Types{"object"},
			AdditionalProperties: openapi3.AdditionalProperties{Has: boolPtr(true)},
			Properties: openapi3.Schemas{
				"id":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"createdAt": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"createdBy": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	for _, col := range resource.Collections {
		addCollectionPaths(doc, col)
	}
	addCommunicationsPaths(doc)
	addSettingsPaths(doc)
	addUsersPaths(doc)

	return doc
}

func boolPtr(b bool) *bool { return &b }

func jsonResponse(description string, schemaRef string) *openapi3.ResponseRef {
	var content openapi3.Content
	if schemaRef != "" {
		content = openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(schemaRef, nil))
	} else {
		content = openapi3.NewContentWithJSONSchema(openapi3.NewObjectSchema())
	}
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     content,
		},
	}
}

func operation(summary, tag string, secured bool, responses map[string]*openapi3.ResponseRef) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Summary = summary
	op.Tags = []string{tag}
	op.Responses = openapi3.NewResponses()
	for code, resp := range responses {
		op.Responses.Set(code, resp)
	}
	op.Responses.Set("default", jsonResponse("Error", "#/components/schemas/ErrorResponse"))
	if secured {
		op.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	}
	return op
}

func addAuthPaths(doc *openapi3.T) {
	doc.Paths.Set("/auth/check-admin", &openapi3.PathItem{
		Get: operation("Report whether initial setup is complete", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Setup status", ""),
		}),
	})
	doc.Paths.Set("/auth/setup-admin", &openapi3.PathItem{
		Post: operation("Create the first admin account", "auth", false, map[string]*openapi3.ResponseRef{
			"201": jsonResponse("Created admin", ""),
		}),
	})
	doc.Paths.Set("/auth/login", &openapi3.PathItem{
		Post: operation("Sign in with email and password", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Session and profile", ""),
		}),
	})
	doc.Paths.Set("/auth/session", &openapi3.PathItem{
		Get: operation("Resolve the current session", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Current user, or null", ""),
		}),
	})
	doc.Paths.Set("/auth/logout", &openapi3.PathItem{
		Post: operation("Revoke the current session", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Logged out", ""),
		}),
	})
	doc.Paths.Set("/auth/forgot-password", &openapi3.PathItem{
		Post: operation("Request a password reset code", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Reset code issued out-of-band", ""),
		}),
	})
	doc.Paths.Set("/auth/verify-reset-code", &openapi3.PathItem{
		Post: operation("Verify a password reset code", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Code accepted", ""),
		}),
	})
	doc.Paths.Set("/auth/reset-password", &openapi3.PathItem{
		Post: operation("Set a new password using a verified reset code", "auth", false, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Password updated", ""),
		}),
	})
	doc.Paths.Set("/auth/me", &openapi3.PathItem{
		Get: operation("Get the current user's profile", "auth", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Profile with super-admin flag", ""),
		}),
	})
	doc.Paths.Set("/auth/change-password", &openapi3.PathItem{
		Post: operation("Change the current user's password", "auth", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Password updated", ""),
		}),
	})
}

func addCommunicationsPaths(doc *openapi3.T) {
	doc.Paths.Set("/communications/send-email", &openapi3.PathItem{
		Post: operation("Send an announcement email", "communications", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Announcement sent", ""),
		}),
	})
}

func addCollectionPaths(doc *openapi3.T, col resource.Collection) {
	base := "/" + col.BasePath()

	doc.Paths.Set(base, &openapi3.PathItem{
		Get: operation("List "+col.Name+"s", col.Name, true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("All "+col.Name+"s", ""),
		}),
		Post: operation("Create a "+col.Name, col.Name, true, map[string]*openapi3.ResponseRef{
			"201": jsonResponse("Created "+col.Name, "#/components/schemas/Document"),
		}),
	})

	if col.AppendOnly {
		return
	}

	idParam := &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     "id",
			In:       "path",
			Required: true,
			Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		},
	}
	doc.Paths.Set(base+"/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Put: operation("Update a "+col.Name, col.Name, true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Updated "+col.Name, "#/components/schemas/Document"),
		}),
		Delete: operation("Delete a "+col.Name, col.Name, true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Deleted", ""),
		}),
	})
}

func addSettingsPaths(doc *openapi3.T) {
	doc.Paths.Set("/settings", &openapi3.PathItem{
		Get: operation("Get church settings", "settings", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Settings document", ""),
		}),
		Put: operation("Update church settings (super admin only)", "settings", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Saved settings", ""),
		}),
	})
}

func addUsersPaths(doc *openapi3.T) {
	doc.Paths.Set("/users", &openapi3.PathItem{
		Get: operation("List accounts (super admin only)", "users", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("All accounts", ""),
		}),
		Post: operation("Create an account (super admin only)", "users", true, map[string]*openapi3.ResponseRef{
			"201": jsonResponse("Created account", "#/components/schemas/User"),
		}),
	})

	idParam := &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     "id",
			In:       "path",
			Required: true,
			Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		},
	}
	doc.Paths.Set("/users/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Put: operation("Update an account (super admin only)", "users", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Updated account", "#/components/schemas/User"),
		}),
		Delete: operation("Delete an account (super admin only)", "users", true, map[string]*openapi3.ResponseRef{
			"200": jsonResponse("Deleted", ""),
		}),
	})
}

var (
	specOnce sync.Once
	specJSON []byte
)

// Handler serves the generated document as JSON. The document is rendered
// once on first request.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specOnce.Do(func() {
			specJSON, _ = json.Marshal(Generate())
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(specJSON)
	}
}
