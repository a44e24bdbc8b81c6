// Package util provides small generic helpers shared by httpreq packages.
package util
