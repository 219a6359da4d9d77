// sgscope - find every AWS resource that references a security group.
// Scan. Report. Delete with confidence.
package main

func main() {
	Execute()
}
