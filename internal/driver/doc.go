// Package driver talks to network devices and extracts raw facts from them.
//
// # Drivers
//
// A Driver handles one platform over one management protocol. SSH drivers
// (cisco_ios, cisco_nxos, cisco_iosxr, arista_eos, juniper_junos) run the
// show commands of their Profile and parse the output with regular
// expressions or gjson. The SNMP driver reads the system, entity and
// interface MIBs with gosnmp.
//
// # Registry
//
// Registry maps driver names to factories. DefaultRegistry registers every
// built-in driver in probe order.
//
// # Connector
//
// Connector resolves the target, checks reachability with a Prober (tcp,
// nmap or none), then tries candidate drivers until one recognizes the
// device. An authentication failure stops probing because every SSH driver
// would use the same credentials.
package driver
