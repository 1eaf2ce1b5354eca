// Package redis connects to Redis for the redis queue backend.
//
// [Connect] wraps [github.com/redis/go-redis/v9] with environment-driven
// pool settings and startup retries. [Healthcheck] and [Shutdown] return
// closures for the ops server and the application shutdown hooks:
//
//	client, err := redis.Connect(ctx, cfg.Redis, log)
//	if err != nil {
//		return err
//	}
//	app.Run(app.WithShutdownHook(redis.Shutdown(client)), ...)
//
// Errors are sentinel values combined with the cause via [errors.Join]:
// [ErrEmptyConnectionURL], [ErrFailedToParseURL], [ErrConnectionFailed]
// and [ErrHealthcheckFailed].
package redis
