package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Capstone API",
        "description": "Capstone allocation and proposal review service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Preferences",
            "description": "Student advisor and topic preferences"
        },
        {
            "name": "Offers",
            "description": "Lecturer supervision offers"
        },
        {
            "name": "Allocations",
            "description": "Recommendations, exports and allocations"
        },
        {
            "name": "Proposals",
            "description": "Topic and outline review workflow"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "Degraded"
                    }
                }
            }
        },
        "/preferences": {
            "post": {
                "tags": [
                    "Preferences"
                ],
                "summary": "Create preference",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreatePreferenceRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/preferences/me": {
            "get": {
                "tags": [
                    "Preferences"
                ],
                "summary": "List my preferences",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/preferences/{id}": {
            "put": {
                "tags": [
                    "Preferences"
                ],
                "summary": "Update preference",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdatePreferenceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Preferences"
                ],
                "summary": "Delete preference",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/offers": {
            "get": {
                "tags": [
                    "Offers"
                ],
                "summary": "List lecturer offers",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Offers"
                ],
                "summary": "Create offer",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateOfferRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/offers/{id}": {
            "patch": {
                "tags": [
                    "Offers"
                ],
                "summary": "Update offer",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateOfferRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/offers/{id}/status": {
            "patch": {
                "tags": [
                    "Offers"
                ],
                "summary": "Change offer status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateOfferStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/recommendations": {
            "post": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Generate allocation recommendation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecommendationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/recommendations/{id}": {
            "get": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Fetch a stored recommendation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/recommendations/{id}/export": {
            "post": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Export recommendation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ExportRecommendationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/exports/{token}": {
            "get": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Download an exported report",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/allocations": {
            "post": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Create allocation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateAllocationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/materialize": {
            "post": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Materialize recommended allocations",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/MaterializeAllocationsRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/allocations/{id}/review": {
            "patch": {
                "tags": [
                    "Allocations"
                ],
                "summary": "Review allocation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReviewAllocationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals": {
            "get": {
                "tags": [
                    "Proposals"
                ],
                "summary": "List proposals visible to the caller",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "array",
                        "items": {
                            "type": "string"
                        },
                        "collectionFormat": "multi"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "offset",
                        "in": "query",
                        "type": "integer"
                    }
                ]
            }
        },
        "/proposals/bulk-transition": {
            "post": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Apply one decision to many proposals",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkTransitionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}": {
            "get": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Proposal detail",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "patch": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Edit or submit the topic",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateProposalRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}/comments": {
            "get": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Proposal review log",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}/outline": {
            "put": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Save or submit the outline",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitOutlineRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}/advisor-review": {
            "post": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Advisor decision",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReviewProposalRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}/head-review": {
            "post": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Division head or dean decision",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReviewProposalRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/proposals/{id}/retry-side-effect": {
            "post": {
                "tags": [
                    "Proposals"
                ],
                "summary": "Re-run a failed follow-up action",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "CreatePreferenceRequest": {
            "type": "object",
            "properties": {
                "priority": {
                    "type": "integer"
                },
                "lecturerId": {
                    "type": "string"
                },
                "topicPoolId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                }
            },
            "required": [
                "priority"
            ]
        },
        "UpdatePreferenceRequest": {
            "type": "object",
            "properties": {
                "priority": {
                    "type": "integer"
                },
                "lecturerId": {
                    "type": "string"
                },
                "topicPoolId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                }
            },
            "required": [
                "priority"
            ]
        },
        "CreateOfferRequest": {
            "type": "object",
            "properties": {
                "topicPoolId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                },
                "capacity": {
                    "type": "integer"
                }
            },
            "required": [
                "capacity"
            ]
        },
        "UpdateOfferRequest": {
            "type": "object",
            "properties": {
                "topicPoolId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                },
                "capacity": {
                    "type": "integer"
                },
                "active": {
                    "type": "boolean"
                }
            }
        },
        "UpdateOfferStatusRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "PENDING",
                        "APPROVED",
                        "REJECTED"
                    ]
                }
            },
            "required": [
                "status"
            ]
        },
        "RecommendationRequest": {
            "type": "object",
            "properties": {
                "scopeFilter": {
                    "type": "string",
                    "enum": [
                        "NONE",
                        "FACULTY",
                        "DIVISION"
                    ]
                }
            }
        },
        "ExportRecommendationRequest": {
            "type": "object",
            "properties": {
                "format": {
                    "type": "string",
                    "enum": [
                        "csv",
                        "pdf",
                        "xlsx"
                    ]
                }
            },
            "required": [
                "format"
            ]
        },
        "CreateAllocationRequest": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "lecturerId": {
                    "type": "string"
                },
                "offerId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                },
                "approve": {
                    "type": "boolean"
                }
            },
            "required": [
                "studentId",
                "lecturerId"
            ]
        },
        "MaterializeAllocationsRequest": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/MaterializeAllocationItem"
                    }
                }
            },
            "required": [
                "items"
            ]
        },
        "ReviewAllocationRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "APPROVED",
                        "REJECTED"
                    ]
                }
            },
            "required": [
                "status"
            ]
        },
        "UpdateProposalRequest": {
            "type": "object",
            "properties": {
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "submit": {
                    "type": "boolean"
                }
            }
        },
        "SubmitOutlineRequest": {
            "type": "object",
            "properties": {
                "introduction": {
                    "type": "string"
                },
                "objectives": {
                    "type": "string"
                },
                "methodology": {
                    "type": "string"
                },
                "expectedResults": {
                    "type": "string"
                },
                "fileRef": {
                    "type": "string"
                },
                "draft": {
                    "type": "boolean"
                }
            }
        },
        "ReviewProposalRequest": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "comment": {
                    "type": "string"
                }
            },
            "required": [
                "status"
            ]
        },
        "BulkTransitionRequest": {
            "type": "object",
            "properties": {
                "proposalIds": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "status": {
                    "type": "string"
                },
                "role": {
                    "type": "string",
                    "enum": [
                        "ADVISOR",
                        "LECTURER",
                        "DIVISION_HEAD",
                        "DEAN"
                    ]
                },
                "comment": {
                    "type": "string"
                }
            },
            "required": [
                "proposalIds",
                "status",
                "role"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "Page": {
            "type": "object",
            "properties": {
                "limit": {
                    "type": "integer"
                },
                "offset": {
                    "type": "integer"
                },
                "count": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "page": {
                    "$ref": "#/definitions/Page"
                },
                "meta": {
                    "type": "object"
                }
            }
        },
        "MaterializeAllocationItem": {
            "type": "object",
            "properties": {
                "studentId": {
                    "type": "string"
                },
                "lecturerId": {
                    "type": "string"
                },
                "offerId": {
                    "type": "string"
                },
                "topicTitle": {
                    "type": "string"
                }
            },
            "required": [
                "studentId",
                "lecturerId"
            ]
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
