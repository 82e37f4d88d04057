// Package logx wraps zerolog for phrasecron.
//
// Console output is human-oriented (short timestamp, file:line caller), the
// file sink writes JSON lines, and the optional alert sink mirrors severe
// records to stderr at a bounded rate.
package logx
