// Package descriptor locates, fetches and parses the registry descriptor: the
// static JSON document carrying the registry contract interface ("abi") and its
// deployed address ("address").
//
// Sources are addressed by URI:
//
//   - file:///path/to/registry.json
//   - https://host/path/registry.json (http:// also accepted)
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/key.json?region=us-west-2&endpoint=custom.s3.com
//   - ipfs://host:port/<cid>[/path]
//   - github://owner/repo/path/registry.json?ref=main
//   - dnslink://domain[/path]?resolver=127.0.0.53:53&ipfs=host:port
//
// Several sources can be combined into a Loader which tries them in order.
package descriptor
