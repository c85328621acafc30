package constants

const StatusActive = "Active"
const StatusOffline = "Offline"

// ledger storage backends
const BackendMemory string = "memory"
const BackendLevelDB string = "leveldb"
const BackendRedis string = "redis"

const TASK_LEDGER_EVENT string = "market.ledger_event"

// request authentication headers
const HEADER_ADDRESS = "X-Market-Address"
const HEADER_TIMESTAMP = "X-Market-Timestamp"
const HEADER_SIGNATURE = "X-Market-Signature"
const HEADER_NONCE = "X-Market-Nonce"

const LEDGER_DIR = "ledger"
const KEYSTORE_DIR = "keystore"
const NODE_KEY_FILE = "private_key"
const SNAPSHOT_OBJECT_PREFIX = "market/snapshots/"
