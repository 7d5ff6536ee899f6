// Package kb defines the core types shared across the knowledge base:
// page records, the vector index, retrieval candidates and results, the
// error taxonomy, and the interfaces the ingestion and query paths depend on.
package kb
