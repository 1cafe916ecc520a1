/*
Package log provides structured logging for Corral using zerolog.

Init configures the global logger (level, JSON or console output); the
With* helpers derive child loggers carrying the component, cluster, node or
action fields so engine log lines are filterable by resource.
*/
package log
