/*
Package monitoring provides metrics collection for the workspace service.

# Overview

This package implements Prometheus-based metrics collection, tracking HTTP
requests, durable flushes, storage tier writes, module resolutions, health
checks and WebSocket streams. Every Metrics value owns its registry, so
several instances can coexist in one process.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.RecordFlush("debounce")

	// Time tier writes
	timer := monitoring.NewTimer(metrics, "local")
	err := local.Save(user, record)
	timer.Stop(err)

A nil *Metrics is valid and records nothing.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
