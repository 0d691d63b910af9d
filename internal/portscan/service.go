package portscan

// wellKnown maps TCP ports to their IANA service names.
var wellKnown = map[uint16]string{
	7:     "echo",
	20:    "ftp-data",
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "domain",
	67:    "bootps",
	69:    "tftp",
	79:    "finger",
	80:    "http",
	88:    "kerberos",
	110:   "pop3",
	111:   "sunrpc",
	119:   "nntp",
	123:   "ntp",
	135:   "msrpc",
	139:   "netbios-ssn",
	143:   "imap",
	161:   "snmp",
	179:   "bgp",
	389:   "ldap",
	443:   "https",
	445:   "microsoft-ds",
	465:   "smtps",
	514:   "shell",
	515:   "printer",
	548:   "afp",
	587:   "submission",
	631:   "ipp",
	636:   "ldaps",
	873:   "rsync",
	993:   "imaps",
	995:   "pop3s",
	1080:  "socks",
	1433:  "ms-sql-s",
	1521:  "oracle",
	1723:  "pptp",
	1883:  "mqtt",
	2049:  "nfs",
	2375:  "docker",
	3306:  "mysql",
	3389:  "ms-wbt-server",
	5060:  "sip",
	5432:  "postgresql",
	5672:  "amqp",
	5900:  "vnc",
	6379:  "redis",
	6443:  "kubernetes",
	8080:  "http-alt",
	8443:  "https-alt",
	9092:  "kafka",
	9200:  "elasticsearch",
	11211: "memcache",
	27017: "mongodb",
}

// Lookup returns the conventional service name for a TCP port, or "unknown".
func Lookup(port uint16) string {
	if name, ok := wellKnown[port]; ok {
		return name
	}
	return "unknown"
}
