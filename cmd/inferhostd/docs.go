package main

// General API documentation for swaggo.
//
// @title           inferhost API
// @version         1.0
// @description     HTTP API for plugin discovery and text generation on the inference host.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
