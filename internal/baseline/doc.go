// Package baseline keeps the local roster of tracked entities together with
// their daily return series, and reconciles that roster against the remote
// platform.
//
// Layout under the cache root:
//
//	entities/index.json           {version, updated_at, entities:{id:{...}}}
//	entities/<id>/daily-pnl.csv   date,<id>
package baseline
