// Package queryir is the intermediate representation of graph queries.
//
// It sits between the SPARQL parser and the SQL backend:
//
//	[SPARQL text] → [sparql.Parse] → [Query IR] → [querysql] → [SQLite]
//
// QUERY FORMS:
//
//   - Select: solutions for a projection of variables
//   - Ask: whether any solution exists
//   - Construct, Describe: graph-shaped results; parsed so they can be
//     rejected with a precise reason, never executed
//
// GRAPH PATTERNS:
//
// Every form carries a basic graph pattern: a conjunction of TriplePatterns
// whose positions are either a Var or a Const, plus optional filter
// expressions over the variables bound by the patterns. Optional patterns,
// unions, property paths and aggregation are not represented.
//
// SEALED INTERFACES:
//
// Query, Term and Expr are sealed with marker methods so backends can switch
// over them exhaustively.
package queryir
