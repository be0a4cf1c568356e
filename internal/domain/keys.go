package domain

// KeyPrefix namespaces all keys written to the shared key-value store.
const KeyPrefix = "bookdex:"
