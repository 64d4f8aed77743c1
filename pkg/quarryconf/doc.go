// Package quarryconf reads declarative endpoint sources into a quarry.Tree.
//
// Two formats are supported:
//
//   - native YAML documents, optionally starting with `syntax: "quarry/<version>"`
//   - OpenAPI 3 documents (JSON or YAML), one endpoint per operation
//
// A native document looks like:
//
//	syntax: "quarry/0.1"
//	base_url: "https://api.example.com"
//	defaults:
//	  method: GET
//	  uri: /v1
//	  headers:
//	    Accept: application/json
//	endpoints:
//	  - name: get_user
//	    uri: /users/@{id}
//	    params:
//	      fields: name,email
//	    named:
//	      id: "1"
//
// Query params keep the order they are written in.
package quarryconf
