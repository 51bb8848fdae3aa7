package redis

// Redis key naming conventions for taskq data.
// All keys are prefixed with "taskq:" to avoid collisions.

const keyPrefix = "taskq:"

// taskKey returns the key for a task entity: taskq:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// scheduleKey is the Sorted Set of READY task IDs scored by due time
// in unix milliseconds. Ties sort lexicographically by ID, which for
// TypeIDs means creation order.
const scheduleKey = keyPrefix + "schedule"

// claimedKey is the Sorted Set of CLAIMED task IDs scored by lease
// expiry in unix milliseconds.
const claimedKey = keyPrefix + "claimed"

// dedupKeysKey is the Hash mapping "{tenant}/{key}" to the task ID that
// owns that dedup key.
const dedupKeysKey = keyPrefix + "task_keys"

// dedupField builds the dedup hash field for a tenant-scoped key.
func dedupField(tenantID, key string) string { return tenantID + "/" + key }
