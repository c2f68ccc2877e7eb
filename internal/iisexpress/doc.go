// Package iisexpress knows how to find, launch and read the IIS Express web
// server that hosts an instance.
package iisexpress
