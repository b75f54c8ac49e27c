// Package stamper expands single-brace {VAR} placeholders in
// selector values. Variables come from the process
// environment and from stamp files holding one "KEY VALUE"
// pair per line; unknown placeholders are left untouched.
package stamper
