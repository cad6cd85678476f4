package main

// General API documentation for swaggo. Run `swag init` and build with
// -tags=swagger to serve the generated docs.
//
// @title           starweaved API
// @version         1.0
// @description     HTTP API for image generation with managed model residency.
//
// @contact.name   starweaved maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
